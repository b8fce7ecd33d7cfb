package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("historian timeout")
	ErrHistorianFailure = errors.New("historian failure")
	ErrInternal         = errors.New("internal server error")
)

// ValidationError запрос отклонён до обращения к историану
type ValidationError struct {
	Fields []string
	Reason string
}

func NewValidationError(reason string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: reason}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrValidation, e.Reason, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StationError ошибка одной станции, не выходит за её пределы
type StationError struct {
	Machine string
	Station string
	Err     error
}

func (e *StationError) Error() string {
	return fmt.Sprintf("station %s/%s: %v", e.Machine, e.Station, e.Err)
}

func (e *StationError) Unwrap() error {
	return e.Err
}

// IsValidation проверяет, что ошибка относится к валидации запроса
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
