package model

import "errors"

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrOwnership   = errors.New("booking belongs to another user")
	ErrCircuitOpen = errors.New("circuit open")
)

const (
	CodeValidation  = "VALIDATION"
	CodeNotFound    = "NOT_FOUND"
	CodeOwnership   = "OWNERSHIP"
	CodeCircuitOpen = "CIRCUIT_OPEN"
	CodeInternal    = "INTERNAL_ERROR"
)

// ErrorCode maps an error to the code reported in tool envelopes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrOwnership):
		return CodeOwnership
	case errors.Is(err, ErrCircuitOpen):
		return CodeCircuitOpen
	default:
		return CodeInternal
	}
}
