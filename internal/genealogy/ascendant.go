package genealogy

import (
	"context"
	"fmt"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/scheduler"
	"github.com/micheltsarasoa/dataparcwebapitraceability/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResolveAscendant для каждой станции находит окна, где теги содержали LookupValue,
// и собирает все идентификаторы, прошедшие через станцию в этих окнах.
func (e *Engine) ResolveAscendant(ctx context.Context, req *domain.AscendantRequest) (*domain.GenealogyResult, error) {
	bounds := domain.TimeRange{From: req.FromDT, To: req.ToDT}

	stations := make([]domain.StationResult, len(req.Stations))
	tasks := make([]scheduler.Task, len(req.Stations))
	for i := range req.Stations {
		st := req.Stations[i]
		stations[i] = newAscendantResult(st, bounds)
		tasks[i] = func(ctx context.Context) error {
			return e.ascendantStation(ctx, req.LookupValue, st, bounds, &stations[i])
		}
	}

	errs := e.runner.Run(ctx, ModeAscendant, tasks)
	for i, err := range errs {
		if err != nil {
			stations[i].Status = domain.StationFailed
			stations[i].Error = err.Error()
		}
	}

	result := Aggregate(bounds, stations)
	e.logger.Info("[Genealogy] ascendant resolved",
		zap.String("lookup_value", req.LookupValue),
		zap.Int("stations", len(req.Stations)),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func newAscendantResult(st domain.AscendantStation, bounds domain.TimeRange) domain.StationResult {
	return domain.StationResult{
		Machine:           st.Machine,
		Station:           st.Station,
		FromDT:            bounds.From,
		ToDT:              bounds.To,
		IdentifierChannel: st.IdentifierChannel,
		TriggerChannel:    st.TriggerChannel,
		TagAddresses:      st.TagAddresses,
		Occurrences:       []domain.Occurrence{},
		Identifiers:       []domain.Identifier{},
		Status:            domain.StationNotFound,
	}
}

func (e *Engine) ascendantStation(ctx context.Context, lookup string, st domain.AscendantStation, bounds domain.TimeRange, out *domain.StationResult) error {
	trigger := e.signal(st.TriggerChannel)

	supers, stats, err := e.superOccurrences(ctx, lookup, st, trigger, bounds)
	out.Occurrences = supers
	if err != nil {
		return &domain.StationError{Machine: st.Machine, Station: st.Station, Err: err}
	}

	identifiers, scanStats, err := e.discoverIdentifiers(ctx, e.signal(st.IdentifierChannel), supers)
	out.Identifiers = identifiers
	stats.add(scanStats)
	if err != nil {
		return &domain.StationError{Machine: st.Machine, Station: st.Station, Err: err}
	}
	if stats.AllTimedOut() {
		return &domain.StationError{
			Machine: st.Machine,
			Station: st.Station,
			Err:     fmt.Errorf("%w: all %d windows timed out", domain.ErrTimeout, stats.Windows),
		}
	}

	if from, to, ok := out.Bounds(); ok {
		out.FromDT, out.ToDT = from, to
	}
	if out.HasData() {
		out.Status = domain.StationOK
	}
	return nil
}

// superOccurrences окна вхождений lookup по всем тегам станции, теги параллельно.
// Дубликаты (fromDT, toDT, tag) отбрасываются.
func (e *Engine) superOccurrences(ctx context.Context, lookup string, st domain.AscendantStation, trigger domain.SignalIdentity, bounds domain.TimeRange) ([]domain.Occurrence, ScanStats, error) {
	perTag := make([][]domain.Occurrence, len(st.TagAddresses))
	perStats := make([]ScanStats, len(st.TagAddresses))

	g, gctx := errgroup.WithContext(ctx)
	if e.settings.TagParallelism > 0 {
		g.SetLimit(e.settings.TagParallelism)
	}
	for j, tag := range st.TagAddresses {
		g.Go(func() error {
			occs, stats, err := e.scanTag(gctx, e.signal(tag), lookup, trigger, bounds)
			perTag[j] = occs
			perStats[j] = stats
			return err
		})
	}
	err := g.Wait()

	var (
		merged []domain.Occurrence
		stats  ScanStats
	)
	seen := make(map[occurrenceKey]struct{})
	for j := range perTag {
		stats.add(perStats[j])
		for _, occ := range perTag[j] {
			key := keyOf(occ.FromDT, occ.ToDT, occ.Channel)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, occ)
		}
	}
	if merged == nil {
		merged = []domain.Occurrence{}
	}
	return merged, stats, err
}

func (e *Engine) scanTag(ctx context.Context, tag domain.SignalIdentity, lookup string, trigger domain.SignalIdentity, bounds domain.TimeRange) ([]domain.Occurrence, ScanStats, error) {
	var (
		occs  []domain.Occurrence
		stats ScanStats
	)

	for _, w := range utils.Split(bounds, e.settings.AscendantWindow) {
		stats.Windows++

		res, err := e.hist.RangedRead(ctx, tag, w.Start, w.End, historian.Options{Timeout: e.settings.BroadReadTimeout})
		if err != nil {
			return occs, stats, fmt.Errorf("%w: ranged read %s: %w", domain.ErrHistorianFailure, tag.Name, err)
		}
		switch res.Status {
		case historian.StatusTimeout:
			stats.TimedOut++
			continue
		case historian.StatusError:
			return occs, stats, fmt.Errorf("%w: ranged read %s returned error status", domain.ErrHistorianFailure, tag.Name)
		}

		matches := matching(res.Points, lookup)
		for _, p := range matches {
			// окно вхождения только между двумя триггерами
			from, hasFrom := e.boundary.LastTriggerBefore(ctx, trigger, p.Time)
			to, hasTo := e.boundary.NextTriggerAfter(ctx, trigger, p.Time)
			if !hasFrom || !hasTo {
				e.logger.Debug("[Genealogy] match without surrounding triggers skipped",
					zap.String("tag", tag.Name),
					zap.Time("observed_at", p.Time),
				)
				continue
			}
			from, to = utils.Clamp(from, bounds.From, bounds.To), utils.Clamp(to, bounds.From, bounds.To)
			if !from.Before(to) {
				continue
			}
			occs = append(occs, domain.Occurrence{Channel: tag.Name, Value: lookup, ObservedAt: p.Time, FromDT: from, ToDT: to})
		}
		if len(matches) > 0 {
			continue
		}

		probe, timedOut, err := e.probeWindow(ctx, tag, lookup, trigger, w, bounds)
		if err != nil {
			return occs, stats, err
		}
		if timedOut {
			stats.TimedOut++
			continue
		}
		occs = append(occs, probe...)
	}
	return occs, stats, nil
}

// probeWindow точечное чтение на концах окна. Окно ограничивается триггерами вокруг самого окна,
// отсутствующий триггер заменяется концом окна.
func (e *Engine) probeWindow(ctx context.Context, tag domain.SignalIdentity, lookup string, trigger domain.SignalIdentity, w domain.Window, bounds domain.TimeRange) ([]domain.Occurrence, bool, error) {
	res, err := e.hist.PointInTimeRead(ctx, tag, []time.Time{w.Start, w.End}, historian.Options{Timeout: e.settings.HotReadTimeout})
	if err != nil {
		return nil, false, fmt.Errorf("%w: point-in-time read %s: %w", domain.ErrHistorianFailure, tag.Name, err)
	}
	switch res.Status {
	case historian.StatusTimeout:
		return nil, true, nil
	case historian.StatusError:
		return nil, false, fmt.Errorf("%w: point-in-time read %s returned error status", domain.ErrHistorianFailure, tag.Name)
	}

	matches := matching(res.Points, lookup)
	if len(matches) == 0 {
		return nil, false, nil
	}

	from, ok := e.boundary.LastTriggerBefore(ctx, trigger, w.Start)
	if !ok {
		from = w.Start
	}
	to, ok := e.boundary.NextTriggerAfter(ctx, trigger, w.End)
	if !ok {
		to = w.End
	}
	from = utils.Clamp(from, bounds.From, bounds.To)
	to = utils.Clamp(to, bounds.From, bounds.To)
	if !from.Before(to) {
		return nil, false, nil
	}

	occs := make([]domain.Occurrence, 0, len(matches))
	for _, p := range matches {
		occs = append(occs, domain.Occurrence{Channel: tag.Name, Value: lookup, ObservedAt: p.Time, FromDT: from, ToDT: to})
	}
	return occs, false, nil
}

// discoverIdentifiers сканирует канал идентификатора внутри каждого окна вхождения.
// Идентификаторы уникальны по значению, CreatedDT первого появления.
func (e *Engine) discoverIdentifiers(ctx context.Context, ch domain.SignalIdentity, supers []domain.Occurrence) ([]domain.Identifier, ScanStats, error) {
	identifiers := []domain.Identifier{}
	seen := make(map[string]struct{})
	var stats ScanStats

	for _, occ := range supers {
		for _, w := range utils.Split(domain.TimeRange{From: occ.FromDT, To: occ.ToDT}, e.settings.AscendantScanWindow) {
			stats.Windows++

			res, err := e.hist.RangedRead(ctx, ch, w.Start, w.End, historian.Options{Timeout: e.settings.HotReadTimeout})
			if err != nil {
				return identifiers, stats, fmt.Errorf("%w: ranged read %s: %w", domain.ErrHistorianFailure, ch.Name, err)
			}
			switch res.Status {
			case historian.StatusTimeout:
				stats.TimedOut++
				continue
			case historian.StatusError:
				return identifiers, stats, fmt.Errorf("%w: ranged read %s returned error status", domain.ErrHistorianFailure, ch.Name)
			}

			for _, p := range res.Points {
				if _, dup := seen[p.Value]; dup {
					continue
				}
				seen[p.Value] = struct{}{}
				identifiers = append(identifiers, domain.Identifier{Value: p.Value, CreatedDT: p.Time})
			}
		}
	}
	return identifiers, stats, nil
}
