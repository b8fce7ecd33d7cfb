package genealogy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian/historiantest"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBoundaryResolver_StrictNeighbours(t *testing.T) {
	ts := hour(10)
	fake := historiantest.New().
		Add("T", ts.Add(-time.Second), "1").
		Add("T", ts, "1").
		Add("T", ts.Add(time.Second), "1").
		Add("T", hour(3), "1").
		Add("T", hour(17), "1")
	b := NewBoundaryResolver(fake, time.Second, zap.NewNop())
	ctx := context.Background()

	instants := []time.Time{hour(0), hour(3), hour(5), ts.Add(-time.Second), ts, ts.Add(time.Second), hour(17), hour(20)}
	for _, p := range instants {
		if next, ok := b.NextTriggerAfter(ctx, sig("T"), p); ok {
			assert.True(t, next.After(p), "next %s must be after %s", next, p)
		}
		if last, ok := b.LastTriggerBefore(ctx, sig("T"), p); ok {
			assert.True(t, last.Before(p), "last %s must be before %s", last, p)
		}
	}

	next, ok := b.NextTriggerAfter(ctx, sig("T"), hour(17))
	assert.False(t, ok, "no trigger after the last one, got %s", next)
	_, ok = b.LastTriggerBefore(ctx, sig("T"), hour(3))
	assert.False(t, ok)
}

func TestBoundaryResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	bounds := day()

	t.Run("both triggers", func(t *testing.T) {
		fake := historiantest.New().Add("T", hour(9), "1").Add("T", hour(11), "1")
		b := NewBoundaryResolver(fake, time.Second, zap.NewNop())

		from, to := b.Resolve(ctx, sig("T"), hour(10), bounds)
		assert.Equal(t, hour(9), from)
		assert.Equal(t, hour(11), to)
	})

	t.Run("only previous trigger", func(t *testing.T) {
		fake := historiantest.New().Add("T", hour(9), "1")
		b := NewBoundaryResolver(fake, time.Second, zap.NewNop())

		from, to := b.Resolve(ctx, sig("T"), hour(10), bounds)
		assert.Equal(t, hour(9), from)
		assert.Equal(t, hour(9), to)
	})

	t.Run("no triggers", func(t *testing.T) {
		b := NewBoundaryResolver(historiantest.New(), time.Second, zap.NewNop())

		from, to := b.Resolve(ctx, sig("T"), hour(10), bounds)
		assert.Equal(t, hour(10), from)
		assert.Equal(t, hour(10), to)
	})

	t.Run("clamped into bounds", func(t *testing.T) {
		fake := historiantest.New().Add("T", hour(-5), "1").Add("T", hour(30), "1")
		b := NewBoundaryResolver(fake, time.Second, zap.NewNop())

		from, to := b.Resolve(ctx, sig("T"), hour(10), bounds)
		assert.Equal(t, bounds.From, from)
		assert.Equal(t, bounds.To, to)
	})

	t.Run("failure treated as absent", func(t *testing.T) {
		fake := historiantest.New().Fail("T", errors.New("socket closed"))
		b := NewBoundaryResolver(fake, time.Second, zap.NewNop())

		from, to := b.Resolve(ctx, sig("T"), hour(10), domain.TimeRange{From: hour(0), To: hour(24)})
		assert.Equal(t, hour(10), from)
		assert.Equal(t, hour(10), to)
	})
}
