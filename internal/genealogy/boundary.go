package genealogy

import (
	"context"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/pkg/utils"

	"go.uber.org/zap"
)

// BoundaryResolver ищет ближайшие события триггера вокруг момента.
// Только поиск ближайшего соседа, без сканирования диапазонов.
type BoundaryResolver struct {
	hist    historian.Historian
	timeout time.Duration
	logger  *zap.Logger
}

func NewBoundaryResolver(hist historian.Historian, timeout time.Duration, logger *zap.Logger) *BoundaryResolver {
	return &BoundaryResolver{
		hist:    hist,
		timeout: timeout,
		logger:  logger,
	}
}

// NextTriggerAfter ближайшее событие триггера после t+1s. Результат всегда строго позже t.
func (b *BoundaryResolver) NextTriggerAfter(ctx context.Context, trigger domain.SignalIdentity, t time.Time) (time.Time, bool) {
	p, ok := b.nearest(ctx, trigger, t.Add(time.Second), historian.Forward)
	if !ok || !p.After(t) {
		return time.Time{}, false
	}
	return p, true
}

// LastTriggerBefore ближайшее событие триггера до t-1s. Результат всегда строго раньше t.
func (b *BoundaryResolver) LastTriggerBefore(ctx context.Context, trigger domain.SignalIdentity, t time.Time) (time.Time, bool) {
	p, ok := b.nearest(ctx, trigger, t.Add(-time.Second), historian.Backward)
	if !ok || !p.Before(t) {
		return time.Time{}, false
	}
	return p, true
}

// Resolve окно вхождения вокруг t, зажатое в bounds.
// toDT: следующий триггер, иначе предыдущий, иначе t. fromDT: предыдущий триггер, иначе t.
func (b *BoundaryResolver) Resolve(ctx context.Context, trigger domain.SignalIdentity, t time.Time, bounds domain.TimeRange) (time.Time, time.Time) {
	last, hasLast := b.LastTriggerBefore(ctx, trigger, t)
	next, hasNext := b.NextTriggerAfter(ctx, trigger, t)

	from, to := t, t
	if hasLast {
		from = last
		to = last
	}
	if hasNext {
		to = next
	}

	return utils.Clamp(from, bounds.From, bounds.To), utils.Clamp(to, bounds.From, bounds.To)
}

// nearest сбои и таймауты означают отсутствие события
func (b *BoundaryResolver) nearest(ctx context.Context, trigger domain.SignalIdentity, start time.Time, dir historian.Direction) (time.Time, bool) {
	res, err := b.hist.DirectionalRead(ctx, trigger, start, dir, 1, historian.Options{Timeout: b.timeout})
	if err != nil {
		b.logger.Warn("[Genealogy] trigger lookup failed",
			zap.String("channel", trigger.String()),
			zap.String("direction", dir.String()),
			zap.Time("start", start),
			zap.Error(err),
		)
		return time.Time{}, false
	}
	if res.Status != historian.StatusSuccessful || len(res.Points) == 0 {
		return time.Time{}, false
	}
	return res.Points[0].Time, true
}
