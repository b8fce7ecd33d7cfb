package genealogy

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/scheduler"

	"go.uber.org/zap"
)

// NullValue значение вспомогательного канала, если ничего не найдено
const NullValue = "null"

// ResolveDescendant ищет известный идентификатор на каждой станции.
// Станция без вхождений исчезает из ответа, станция с N вхождениями даёт N записей.
// При сбое станции найденные до него вхождения сохраняются, за ними идёт запись Failed.
func (e *Engine) ResolveDescendant(ctx context.Context, req *domain.DescendantRequest) (*domain.GenealogyResult, error) {
	bounds := domain.TimeRange{From: req.FromDT, To: req.ToDT}

	// каждая задача пишет только в replacements[i]
	replacements := make([][]domain.StationResult, len(req.Stations))
	tasks := make([]scheduler.Task, len(req.Stations))
	for i := range req.Stations {
		st := req.Stations[i]
		tasks[i] = func(ctx context.Context) error {
			records, err := e.descendantStation(ctx, req, st, bounds)
			replacements[i] = records
			return err
		}
	}

	errs := e.runner.Run(ctx, ModeDescendant, tasks)

	stations := make([]domain.StationResult, 0, len(req.Stations))
	for i, records := range replacements {
		if errs[i] != nil && len(records) == 0 {
			// паника или иной сбой до записи результата
			records = []domain.StationResult{failedDescendant(req.Stations[i], bounds, errs[i])}
		}
		stations = append(stations, records...)
	}

	result := Aggregate(bounds, stations)
	e.logger.Info("[Genealogy] descendant resolved",
		zap.String("identifier", req.TargetIdentifier),
		zap.Int("stations", len(req.Stations)),
		zap.Int("records", len(stations)),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func (e *Engine) descendantStation(ctx context.Context, req *domain.DescendantRequest, st domain.DescendantStation, bounds domain.TimeRange) ([]domain.StationResult, error) {
	occurrences, stats, err := e.locator.FindOccurrences(ctx, LocateQuery{
		Channel:       e.signal(st.IdentifierChannel),
		Trigger:       e.signal(st.TriggerChannel),
		Value:         req.TargetIdentifier,
		Range:         bounds,
		WindowSize:    e.settings.DescendantWindow,
		IncludeRework: req.IncludeRework,
	})
	if err == nil && stats.AllTimedOut() {
		err = fmt.Errorf("%w: all %d windows timed out", domain.ErrTimeout, stats.Windows)
	}
	records := e.occurrenceRecords(ctx, st, occurrences)
	if err != nil {
		stErr := &domain.StationError{Machine: st.Machine, Station: st.Station, Err: err}
		return append(records, failedDescendant(st, bounds, stErr)), stErr
	}
	return records, nil
}

// occurrenceRecords одна запись на вхождение, со своей копией вспомогательных каналов
func (e *Engine) occurrenceRecords(ctx context.Context, st domain.DescendantStation, occurrences []domain.Occurrence) []domain.StationResult {
	records := make([]domain.StationResult, 0, len(occurrences)+1)
	for _, occ := range occurrences {
		rec := domain.StationResult{
			Machine:           st.Machine,
			Station:           st.Station,
			FromDT:            occ.FromDT,
			ToDT:              occ.ToDT,
			IdentifierChannel: st.IdentifierChannel,
			TriggerChannel:    st.TriggerChannel,
			AuxiliaryChannels: maps.Clone(st.AuxiliaryChannels),
			Occurrences:       []domain.Occurrence{occ},
			Status:            domain.StationOK,
		}

		var lookupErrs []string
		for _, name := range slices.Sorted(maps.Keys(rec.AuxiliaryChannels)) {
			value, err := e.auxiliaryValue(ctx, e.signal(name), occ.ToDT)
			if err != nil {
				lookupErrs = append(lookupErrs, fmt.Sprintf("%s: %v", name, err))
			}
			rec.AuxiliaryChannels[name] = value
		}
		if len(lookupErrs) > 0 {
			rec.Error = strings.Join(lookupErrs, "; ")
		}

		records = append(records, rec)
	}
	return records
}

// auxiliaryValue значение канала в момент t, иначе ближайшее раньше t, иначе NullValue
func (e *Engine) auxiliaryValue(ctx context.Context, ch domain.SignalIdentity, t time.Time) (string, error) {
	res, err := e.hist.PointInTimeRead(ctx, ch, []time.Time{t}, historian.Options{Timeout: e.settings.HotReadTimeout})
	if err != nil {
		return NullValue, err
	}
	if res.Status == historian.StatusSuccessful && len(res.Points) > 0 && res.Points[0].Value != "" {
		return res.Points[0].Value, nil
	}

	res, err = e.hist.DirectionalRead(ctx, ch, t, historian.Backward, 1, historian.Options{Timeout: e.settings.ReadTimeout})
	if err != nil {
		return NullValue, err
	}
	if res.Status == historian.StatusSuccessful && len(res.Points) > 0 {
		return res.Points[0].Value, nil
	}
	return NullValue, nil
}

func failedDescendant(st domain.DescendantStation, bounds domain.TimeRange, err error) domain.StationResult {
	return domain.StationResult{
		Machine:           st.Machine,
		Station:           st.Station,
		FromDT:            bounds.From,
		ToDT:              bounds.To,
		IdentifierChannel: st.IdentifierChannel,
		TriggerChannel:    st.TriggerChannel,
		AuxiliaryChannels: maps.Clone(st.AuxiliaryChannels),
		Occurrences:       []domain.Occurrence{},
		Status:            domain.StationFailed,
		Error:             err.Error(),
	}
}
