// Package historian описывает порт к историану временных рядов.
//
// Все чтения возвращают (Result, error). Ненулевая ошибка означает сбой
// историана. Истечение дедлайна отдаётся как StatusTimeout с nil-ошибкой,
// отсутствие данных как StatusNoValueFound.
package historian

import (
	"context"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
)

type Status int

const (
	StatusSuccessful Status = iota
	StatusNoValueFound
	StatusTimeout
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusNoValueFound:
		return "no_value_found"
	case StatusTimeout:
		return "timeout"
	default:
		return "error"
	}
}

type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Options параметры одного вызова
type Options struct {
	Timeout time.Duration
}

type Result struct {
	Status Status
	Points []domain.Point
}

// Empty true, если чтение не принесло точек
func (r Result) Empty() bool {
	return r.Status == StatusNoValueFound || (r.Status == StatusSuccessful && len(r.Points) == 0)
}

// Found результат с точками
func Found(points []domain.Point) Result {
	if len(points) == 0 {
		return Result{Status: StatusNoValueFound}
	}
	return Result{Status: StatusSuccessful, Points: points}
}

type Historian interface {
	// RangedRead сырые значения канала в [start, end] по возрастанию времени
	RangedRead(ctx context.Context, ch domain.SignalIdentity, start, end time.Time, opts Options) (Result, error)
	// PointInTimeRead значение канала (ступенчатая интерполяция) в каждый момент timestamps
	PointInTimeRead(ctx context.Context, ch domain.SignalIdentity, timestamps []time.Time, opts Options) (Result, error)
	// DirectionalRead count ближайших значений от start в направлении dir
	DirectionalRead(ctx context.Context, ch domain.SignalIdentity, start time.Time, dir Direction, count int, opts Options) (Result, error)
	Ping(ctx context.Context) error
}
