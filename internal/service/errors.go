package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrModel        = errors.New("model unavailable")
	ErrStorage      = errors.New("storage unavailable")
)

// InputError is a caller fault; its message is safe to return to clients.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func missing(field string) error {
	return &InputError{Field: field, Reason: "is required"}
}
