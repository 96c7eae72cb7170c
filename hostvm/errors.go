package hostvm

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCallCode = errors.New("unknown call code")
	ErrMemoryAccess    = errors.New("guest memory access out of bounds")
	ErrUnknownContract = errors.New("unknown contract")
	ErrUnknownService  = errors.New("unknown service")
	ErrCyclesExhausted = errors.New("cycle limit exceeded")
	ErrInvalidContext  = errors.New("invalid context")
	ErrGuestPanic      = errors.New("guest panicked outside the entry handler")
)

// ExitError records a guest that terminated through the exit call.
type ExitError struct {
	Code uint64
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("guest exited with code %d", e.Code)
}

// AssertionError records a failed guest assertion.
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s", e.Msg)
}
