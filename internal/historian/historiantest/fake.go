// Package historiantest содержит историан в памяти для тестов.
package historiantest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
)

type timedFault struct {
	at  time.Time
	err error
}

// Fake хранит ряды по имени канала. Безопасен для конкурентного использования.
type Fake struct {
	mu       sync.Mutex
	series   map[string][]domain.Point
	timeouts map[string][]time.Time
	faults   map[string]error
	faultsAt map[string][]timedFault
	blocked  map[string]bool
	calls    map[string]int
	pingErr  error
}

func New() *Fake {
	return &Fake{
		series:   make(map[string][]domain.Point),
		timeouts: make(map[string][]time.Time),
		faults:   make(map[string]error),
		faultsAt: make(map[string][]timedFault),
		blocked:  make(map[string]bool),
		calls:    make(map[string]int),
	}
}

// Add добавляет значение канала
func (f *Fake) Add(channel string, t time.Time, value string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	pts := append(f.series[channel], domain.Point{Time: t, Value: value})
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })
	f.series[channel] = pts
	return f
}

// TimeoutAt ранжированные и точечные чтения канала, накрывающие t, вернут StatusTimeout
func (f *Fake) TimeoutAt(channel string, t time.Time) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts[channel] = append(f.timeouts[channel], t)
	return f
}

// Fail любое чтение канала вернёт err
func (f *Fake) Fail(channel string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[channel] = err
	return f
}

// FailAt ранжированные и точечные чтения канала, накрывающие t, вернут err
func (f *Fake) FailAt(channel string, t time.Time, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faultsAt[channel] = append(f.faultsAt[channel], timedFault{at: t, err: err})
	return f
}

// Block чтения канала ждут отмены контекста
func (f *Fake) Block(channel string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[channel] = true
	return f
}

func (f *Fake) SetPingError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// Calls число вызовов операции ("ranged", "point", "directional")
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) RangedRead(ctx context.Context, ch domain.SignalIdentity, start, end time.Time, _ historian.Options) (historian.Result, error) {
	if start.After(end) {
		start, end = end, start
	}
	if res, done, err := f.enter(ctx, "ranged", ch.Name, start, end); done {
		return res, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Point
	for _, p := range f.series[ch.Name] {
		if !p.Time.Before(start) && !p.Time.After(end) {
			out = append(out, p)
		}
	}
	return historian.Found(out), nil
}

func (f *Fake) PointInTimeRead(ctx context.Context, ch domain.SignalIdentity, timestamps []time.Time, _ historian.Options) (historian.Result, error) {
	if len(timestamps) == 0 {
		return historian.Result{Status: historian.StatusNoValueFound}, nil
	}
	first, last := timestamps[0], timestamps[0]
	for _, ts := range timestamps {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	if res, done, err := f.enter(ctx, "point", ch.Name, first, last); done {
		return res, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Point
	for _, ts := range timestamps {
		if p, ok := stateAt(f.series[ch.Name], ts); ok {
			out = append(out, domain.Point{Time: ts, Value: p.Value})
		}
	}
	return historian.Found(out), nil
}

func (f *Fake) DirectionalRead(ctx context.Context, ch domain.SignalIdentity, start time.Time, dir historian.Direction, count int, _ historian.Options) (historian.Result, error) {
	if res, done, err := f.enter(ctx, "directional", ch.Name, time.Time{}, time.Time{}); done {
		return res, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	pts := f.series[ch.Name]
	var out []domain.Point
	if dir == historian.Forward {
		for _, p := range pts {
			if len(out) == count {
				break
			}
			if !p.Time.Before(start) {
				out = append(out, p)
			}
		}
	} else {
		for i := len(pts) - 1; i >= 0; i-- {
			if len(out) == count {
				break
			}
			if !pts[i].Time.After(start) {
				out = append(out, pts[i])
			}
		}
	}
	return historian.Found(out), nil
}

func (f *Fake) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

// enter учитывает вызов и применяет сценарии сбоев. Для from/to нулевых таймауты и FailAt не проверяются.
func (f *Fake) enter(ctx context.Context, op, channel string, from, to time.Time) (historian.Result, bool, error) {
	f.mu.Lock()
	f.calls[op]++
	blocked := f.blocked[channel]
	fault := f.faults[channel]
	timedOut := false
	if !from.IsZero() {
		for _, t := range f.timeouts[channel] {
			if !t.Before(from) && !t.After(to) {
				timedOut = true
				break
			}
		}
		for _, tf := range f.faultsAt[channel] {
			if fault == nil && !tf.at.Before(from) && !tf.at.After(to) {
				fault = tf.err
			}
		}
	}
	f.mu.Unlock()

	switch {
	case blocked:
		<-ctx.Done()
		return historian.Result{}, true, ctx.Err()
	case fault != nil:
		return historian.Result{}, true, fault
	case timedOut:
		return historian.Result{Status: historian.StatusTimeout}, true, nil
	}
	return historian.Result{}, false, nil
}

func stateAt(pts []domain.Point, ts time.Time) (domain.Point, bool) {
	idx := sort.Search(len(pts), func(i int) bool { return pts[i].Time.After(ts) })
	if idx == 0 {
		return domain.Point{}, false
	}
	return pts[idx-1], true
}
