package genealogy

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/scheduler"

	"go.uber.org/zap"
)

// SnapshotIdentifiers все идентификаторы станции за период, каждый со своим окном
// и значениями вспомогательных каналов на конец окна.
func (e *Engine) SnapshotIdentifiers(ctx context.Context, req *domain.SnapshotRequest) (*domain.SnapshotResult, error) {
	stations := make([]domain.SnapshotStationResult, len(req.Stations))
	tasks := make([]scheduler.Task, len(req.Stations))
	for i := range req.Stations {
		st := req.Stations[i]
		stations[i] = domain.SnapshotStationResult{
			Machine:           st.Machine,
			Station:           st.Station,
			FromDT:            st.FromDT,
			ToDT:              st.ToDT,
			IdentifierChannel: st.IdentifierChannel,
			TriggerChannel:    st.TriggerChannel,
			Entries:           []domain.SnapshotEntry{},
			Status:            domain.StationNotFound,
		}
		tasks[i] = func(ctx context.Context) error {
			return e.snapshotStation(ctx, st, &stations[i])
		}
	}

	errs := e.runner.Run(ctx, ModeSnapshot, tasks)

	var failed, found bool
	for i, err := range errs {
		if err != nil {
			stations[i].Status = domain.StationFailed
			stations[i].Error = err.Error()
			failed = true
		}
		if len(stations[i].Entries) > 0 {
			found = true
		}
	}

	result := &domain.SnapshotResult{
		Status:   overallStatus(failed, found),
		Stations: stations,
	}
	e.logger.Info("[Genealogy] identifier snapshot resolved",
		zap.Int("stations", len(stations)),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func (e *Engine) snapshotStation(ctx context.Context, st domain.SnapshotStation, out *domain.SnapshotStationResult) error {
	ch := e.signal(st.IdentifierChannel)

	res, err := e.hist.RangedRead(ctx, ch, st.FromDT, st.ToDT, historian.Options{Timeout: e.settings.BroadReadTimeout})
	if err != nil {
		return &domain.StationError{Machine: st.Machine, Station: st.Station,
			Err: fmt.Errorf("%w: ranged read %s: %w", domain.ErrHistorianFailure, ch.Name, err)}
	}
	switch res.Status {
	case historian.StatusTimeout:
		return &domain.StationError{Machine: st.Machine, Station: st.Station,
			Err: fmt.Errorf("%w: ranged read %s", domain.ErrTimeout, ch.Name)}
	case historian.StatusError:
		return &domain.StationError{Machine: st.Machine, Station: st.Station,
			Err: fmt.Errorf("%w: ranged read %s returned error status", domain.ErrHistorianFailure, ch.Name)}
	}

	var lookupErrs []string
	seen := make(map[string]struct{})
	for i, p := range res.Points {
		if _, dup := seen[p.Value]; dup {
			continue
		}
		seen[p.Value] = struct{}{}

		entry := domain.SnapshotEntry{Identifier: p.Value, FromDT: p.Time}
		if i+1 < len(res.Points) {
			entry.ToDT = res.Points[i+1].Time
		} else if next, ok := e.boundary.NextTriggerAfter(ctx, e.signal(st.TriggerChannel), p.Time); ok {
			entry.ToDT = next
		} else {
			entry.ToDT = e.now().UTC()
		}

		if len(st.AuxiliaryChannels) > 0 {
			entry.AuxiliaryChannels = maps.Clone(st.AuxiliaryChannels)
			for _, name := range slices.Sorted(maps.Keys(entry.AuxiliaryChannels)) {
				value, err := e.nearestBefore(ctx, e.signal(name), entry)
				if err != nil {
					lookupErrs = append(lookupErrs, fmt.Sprintf("%s@%s: %v", name, entry.Identifier, err))
				}
				entry.AuxiliaryChannels[name] = value
			}
		}

		out.Entries = append(out.Entries, entry)
	}

	if len(lookupErrs) > 0 {
		out.Error = strings.Join(lookupErrs, "; ")
	}

	if len(out.Entries) > 0 {
		out.Status = domain.StationOK
		out.FromDT, out.ToDT = out.Entries[0].FromDT, out.Entries[0].ToDT
		for _, entry := range out.Entries[1:] {
			if entry.FromDT.Before(out.FromDT) {
				out.FromDT = entry.FromDT
			}
			if entry.ToDT.After(out.ToDT) {
				out.ToDT = entry.ToDT
			}
		}
	}
	return nil
}

// nearestBefore значение канала, ближайшее к концу окна записи
func (e *Engine) nearestBefore(ctx context.Context, ch domain.SignalIdentity, entry domain.SnapshotEntry) (string, error) {
	res, err := e.hist.DirectionalRead(ctx, ch, entry.ToDT, historian.Backward, 1, historian.Options{Timeout: e.settings.ReadTimeout})
	if err != nil {
		return NullValue, err
	}
	if res.Status == historian.StatusSuccessful && len(res.Points) > 0 {
		return res.Points[0].Value, nil
	}
	return NullValue, nil
}
