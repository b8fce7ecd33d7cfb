package utils

import (
	"testing"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestSplit_CoversRangeContiguously(t *testing.T) {
	cases := []struct {
		name string
		span time.Duration
		size time.Duration
	}{
		{"exact multiple", 24 * time.Hour, 6 * time.Hour},
		{"truncated tail", 25*time.Hour + 30*time.Minute, 6 * time.Hour},
		{"smaller than window", 90 * time.Minute, 12 * time.Hour},
		{"one second windows", 10 * time.Second, time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := domain.TimeRange{From: base, To: base.Add(tc.span)}
			windows := Split(r, tc.size)

			if assert.NotEmpty(t, windows) {
				assert.Equal(t, r.From, windows[0].Start)
				assert.Equal(t, r.To, windows[len(windows)-1].End)
			}
			for i, w := range windows {
				assert.True(t, w.Start.Before(w.End))
				assert.LessOrEqual(t, w.End.Sub(w.Start), tc.size)
				if i > 0 {
					assert.Equal(t, windows[i-1].End, w.Start)
				}
				if i < len(windows)-1 {
					assert.Equal(t, tc.size, w.End.Sub(w.Start))
				}
			}
		})
	}
}

func TestSplit_ReversedRangeIsNormalized(t *testing.T) {
	from := base
	to := base.Add(27 * time.Hour)

	assert.Equal(t,
		Split(domain.TimeRange{From: from, To: to}, 6*time.Hour),
		Split(domain.TimeRange{From: to, To: from}, 6*time.Hour))
}

func TestSplit_EmptyRange(t *testing.T) {
	assert.Empty(t, Split(domain.TimeRange{From: base, To: base}, time.Hour))
	assert.Empty(t, Split(domain.TimeRange{From: base, To: base.Add(time.Hour)}, 0))
}

func TestClamp(t *testing.T) {
	from := base
	to := base.Add(time.Hour)

	assert.Equal(t, from, Clamp(base.Add(-time.Minute), from, to))
	assert.Equal(t, to, Clamp(base.Add(2*time.Hour), from, to))
	assert.Equal(t, base.Add(time.Minute), Clamp(base.Add(time.Minute), from, to))
}

func TestClampRange(t *testing.T) {
	floor := base
	now := base.Add(48 * time.Hour)

	r := ClampRange(domain.TimeRange{From: base.Add(-time.Hour), To: base.Add(72 * time.Hour)}, floor, now)
	assert.Equal(t, floor, r.From)
	assert.Equal(t, now, r.To)

	inside := domain.TimeRange{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)}
	assert.Equal(t, inside, ClampRange(inside, floor, now))
}

func TestNewRequestID(t *testing.T) {
	id := NewRequestID()
	assert.True(t, IsValidUUID(id))
	assert.NotEqual(t, id, NewRequestID())
}
