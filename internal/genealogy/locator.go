package genealogy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/pkg/utils"

	"go.uber.org/zap"
)

// LocateQuery поиск значения на канале станции
type LocateQuery struct {
	Channel       domain.SignalIdentity
	Trigger       domain.SignalIdentity
	Value         string
	Range         domain.TimeRange
	WindowSize    time.Duration
	IncludeRework bool
}

// ScanStats сколько окон прочитано и сколько из них упало по таймауту
type ScanStats struct {
	Windows  int
	TimedOut int
}

// AllTimedOut все попытки станции закончились таймаутом
func (s ScanStats) AllTimedOut() bool {
	return s.Windows > 0 && s.TimedOut == s.Windows
}

func (s *ScanStats) add(o ScanStats) {
	s.Windows += o.Windows
	s.TimedOut += o.TimedOut
}

type occurrenceKey struct {
	from    int64
	to      int64
	channel string
}

func keyOf(from, to time.Time, channel string) occurrenceKey {
	return occurrenceKey{from: from.UnixNano(), to: to.UnixNano(), channel: channel}
}

// Locator ищет вхождения значения, окно за окном, от поздних к ранним
type Locator struct {
	hist        historian.Historian
	boundary    *BoundaryResolver
	readTimeout time.Duration
	hotTimeout  time.Duration
	logger      *zap.Logger
}

func NewLocator(hist historian.Historian, boundary *BoundaryResolver, readTimeout, hotTimeout time.Duration, logger *zap.Logger) *Locator {
	return &Locator{
		hist:        hist,
		boundary:    boundary,
		readTimeout: readTimeout,
		hotTimeout:  hotTimeout,
		logger:      logger,
	}
}

// FindOccurrences вхождения q.Value на q.Channel в пределах q.Range.
// Без IncludeRework из каждого окна берётся только самое позднее вхождение.
// Ошибка историана прерывает поиск и возвращается вместе с уже найденным.
func (l *Locator) FindOccurrences(ctx context.Context, q LocateQuery) ([]domain.Occurrence, ScanStats, error) {
	var (
		occurrences []domain.Occurrence
		stats       ScanStats
	)
	seen := make(map[occurrenceKey]struct{})

	windows := utils.Split(q.Range, q.WindowSize)
	for i := len(windows) - 1; i >= 0; i-- {
		w := windows[i]
		stats.Windows++

		matches, timedOut, err := l.scanWindow(ctx, q.Channel, q.Value, w)
		if err != nil {
			return occurrences, stats, fmt.Errorf("scan %s window %s..%s: %w",
				q.Channel.Name, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), err)
		}
		if timedOut {
			stats.TimedOut++
			l.logger.Debug("[Genealogy] window skipped on timeout",
				zap.String("channel", q.Channel.String()),
				zap.Time("window_start", w.Start),
				zap.Time("window_end", w.End),
			)
			continue
		}

		sort.SliceStable(matches, func(a, b int) bool { return matches[a].Time.After(matches[b].Time) })

		for _, p := range matches {
			from, to := l.boundary.Resolve(ctx, q.Trigger, p.Time, q.Range)
			key := keyOf(from, to, q.Channel.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			occurrences = append(occurrences, domain.Occurrence{
				Channel:    q.Channel.Name,
				Value:      q.Value,
				ObservedAt: p.Time,
				FromDT:     from,
				ToDT:       to,
			})
			if !q.IncludeRework {
				// одно, самое позднее вхождение на окно
				break
			}
		}
	}

	return occurrences, stats, nil
}

// scanWindow сырое чтение окна, при пустом результате точечное чтение на концах окна
func (l *Locator) scanWindow(ctx context.Context, ch domain.SignalIdentity, value string, w domain.Window) ([]domain.Point, bool, error) {
	res, err := l.hist.RangedRead(ctx, ch, w.Start, w.End, historian.Options{Timeout: l.readTimeout})
	if err != nil {
		return nil, false, fmt.Errorf("%w: ranged read: %w", domain.ErrHistorianFailure, err)
	}

	switch {
	case res.Status == historian.StatusTimeout:
		return nil, true, nil
	case res.Status == historian.StatusError:
		return nil, false, fmt.Errorf("%w: ranged read returned error status", domain.ErrHistorianFailure)
	case !res.Empty():
		return matching(res.Points, value), false, nil
	}

	res, err = l.hist.PointInTimeRead(ctx, ch, []time.Time{w.Start, w.End}, historian.Options{Timeout: l.hotTimeout})
	if err != nil {
		return nil, false, fmt.Errorf("%w: point-in-time read: %w", domain.ErrHistorianFailure, err)
	}

	switch res.Status {
	case historian.StatusTimeout:
		return nil, true, nil
	case historian.StatusError:
		return nil, false, fmt.Errorf("%w: point-in-time read returned error status", domain.ErrHistorianFailure)
	}
	return matching(res.Points, value), false, nil
}

// FindLatest сдвигающийся назад поиск: окна по step от r.To к r.From,
// первое совпадение в окне по возрастанию времени. Последнее, обрезанное окно тоже читается.
func (l *Locator) FindLatest(ctx context.Context, ch domain.SignalIdentity, value string, r domain.TimeRange, step time.Duration) (domain.Point, bool, error) {
	if step <= 0 || !r.From.Before(r.To) {
		return domain.Point{}, false, nil
	}

	end := r.To
	for {
		start := end.Add(-step)
		if start.Before(r.From) {
			start = r.From
		}

		res, err := l.hist.RangedRead(ctx, ch, start, end, historian.Options{Timeout: l.hotTimeout})
		if err != nil {
			return domain.Point{}, false, fmt.Errorf("%w: ranged read %s: %w", domain.ErrHistorianFailure, ch.Name, err)
		}
		if res.Status == historian.StatusError {
			return domain.Point{}, false, fmt.Errorf("%w: ranged read %s returned error status", domain.ErrHistorianFailure, ch.Name)
		}
		if res.Status == historian.StatusSuccessful {
			if found := matching(res.Points, value); len(found) > 0 {
				return found[0], true, nil
			}
		}

		if !start.After(r.From) {
			return domain.Point{}, false, nil
		}
		end = start
	}
}

func matching(points []domain.Point, value string) []domain.Point {
	var out []domain.Point
	for _, p := range points {
		if p.Value == value {
			out = append(out, p)
		}
	}
	return out
}
