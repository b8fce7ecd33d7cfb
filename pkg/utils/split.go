package utils

import (
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
)

// Split делит интервал на смежные окна размера size.
// Перевёрнутый интервал нормализуется, последнее окно обрезается по to.
// При from == to или size <= 0 возвращает пустой срез.
func Split(r domain.TimeRange, size time.Duration) []domain.Window {
	from, to := r.From, r.To
	if from.After(to) {
		from, to = to, from
	}
	if !from.Before(to) || size <= 0 {
		return nil
	}

	windows := make([]domain.Window, 0, int(to.Sub(from)/size)+1)
	for start := from; start.Before(to); {
		end := start.Add(size)
		if end.After(to) {
			end = to
		}
		windows = append(windows, domain.Window{Start: start, End: end})
		start = end
	}
	return windows
}

// ClampRange не даёт искать раньше floor и позже now
func ClampRange(r domain.TimeRange, floor, now time.Time) domain.TimeRange {
	if !floor.IsZero() && r.From.Before(floor) {
		r.From = floor
	}
	if r.To.After(now) {
		r.To = now
	}
	return r
}
