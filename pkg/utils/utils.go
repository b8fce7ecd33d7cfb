package utils

import (
	"time"

	"github.com/google/uuid"
)

func NewUUID() uuid.UUID {
	return uuid.New()
}

func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// NewRequestID идентификатор запроса для логов и ответа
func NewRequestID() string {
	return NewUUID().String()
}

// Clamp ограничивает t интервалом [from, to]
func Clamp(t, from, to time.Time) time.Time {
	if t.Before(from) {
		return from
	}
	if t.After(to) {
		return to
	}
	return t
}
