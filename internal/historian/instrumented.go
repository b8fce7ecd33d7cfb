package historian

import (
	"context"
	"errors"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Instrumented оборачивает историан: дедлайн на вызов, ограничение частоты, метрики.
// Истечение дедлайна превращается в StatusTimeout.
type Instrumented struct {
	next    Historian
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewInstrumented при limit <= 0 частота не ограничивается
func NewInstrumented(next Historian, limit float64, burst int, logger *zap.Logger) *Instrumented {
	var limiter *rate.Limiter
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}

	return &Instrumented{
		next:    next,
		limiter: limiter,
		logger:  logger,
	}
}

func (h *Instrumented) RangedRead(ctx context.Context, ch domain.SignalIdentity, start, end time.Time, opts Options) (Result, error) {
	return h.call(ctx, "ranged_read", ch, opts, func(ctx context.Context) (Result, error) {
		return h.next.RangedRead(ctx, ch, start, end, opts)
	})
}

func (h *Instrumented) PointInTimeRead(ctx context.Context, ch domain.SignalIdentity, timestamps []time.Time, opts Options) (Result, error) {
	return h.call(ctx, "point_in_time_read", ch, opts, func(ctx context.Context) (Result, error) {
		return h.next.PointInTimeRead(ctx, ch, timestamps, opts)
	})
}

func (h *Instrumented) DirectionalRead(ctx context.Context, ch domain.SignalIdentity, start time.Time, dir Direction, count int, opts Options) (Result, error) {
	return h.call(ctx, "directional_read_"+dir.String(), ch, opts, func(ctx context.Context) (Result, error) {
		return h.next.DirectionalRead(ctx, ch, start, dir, count, opts)
	})
}

func (h *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.HistorianCallDuration.WithLabelValues("ping").Observe(time.Since(start).Seconds())
	}()

	err := h.next.Ping(ctx)
	if err != nil {
		metrics.HistorianUp.Set(0)
		return err
	}
	metrics.HistorianUp.Set(1)
	return nil
}

func (h *Instrumented) call(ctx context.Context, op string, ch domain.SignalIdentity, opts Options, fn func(context.Context) (Result, error)) (Result, error) {
	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := h.invoke(callCtx, fn)
	metrics.HistorianCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil && isDeadline(callCtx, err) {
		h.logger.Debug("historian call timed out",
			zap.String("operation", op),
			zap.String("channel", ch.String()),
			zap.Duration("timeout", opts.Timeout),
		)
		res, err = Result{Status: StatusTimeout}, nil
	}

	status := res.Status.String()
	if err != nil {
		status = "fault"
	}
	metrics.HistorianCalls.WithLabelValues(op, status).Inc()

	return res, err
}

func (h *Instrumented) invoke(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			// лимитер не успевает до дедлайна
			return Result{Status: StatusTimeout}, nil
		}
	}
	return fn(ctx)
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
