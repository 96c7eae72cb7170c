package mutago

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failures a syscall can report.
type ErrorKind uint8

const (
	// KindLengthNotEnough means the host output did not fit the caller's buffer.
	KindLengthNotEnough ErrorKind = iota + 1
	// KindInvalidUTF8 means the host returned bytes that are not valid UTF-8.
	KindInvalidUTF8
)

// SysError is a syscall failure. Len is the actual data length reported by the
// host and is only set for KindLengthNotEnough. Values are comparable with ==.
type SysError struct {
	Kind ErrorKind
	Len  uint64
}

// Error kinds usable as errors.Is targets. Matching ignores Len.
var (
	ErrLengthNotEnough = SysError{Kind: KindLengthNotEnough}
	ErrInvalidUTF8     = SysError{Kind: KindInvalidUTF8}
)

// LengthNotEnough returns the error for a buffer smaller than actual.
func LengthNotEnough(actual uint64) SysError {
	return SysError{Kind: KindLengthNotEnough, Len: actual}
}

func (e SysError) Error() string {
	switch e.Kind {
	case KindLengthNotEnough:
		return fmt.Sprintf("buffer length is not enough, actual data length %d", e.Len)
	case KindInvalidUTF8:
		return "invalid utf-8 data"
	default:
		return fmt.Sprintf("unknown syscall error kind %d", e.Kind)
	}
}

// Is reports whether target is a SysError of the same kind. A target with a
// non-zero Len must also match the length.
func (e SysError) Is(target error) bool {
	t, ok := target.(SysError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Len == 0 || t.Len == e.Len)
}

// RequiredLen extracts the actual data length from a length-not-enough error.
func RequiredLen(err error) (uint64, bool) {
	var se SysError
	if errors.As(err, &se) && se.Kind == KindLengthNotEnough {
		return se.Len, true
	}
	return 0, false
}

// ErrInvalidAddress is returned for a contract address that is not exactly
// abi.AddressHexLen bytes long.
var ErrInvalidAddress = errors.New("invalid contract address length")

// DefaultErrorCode is the exit code for errors that carry no code of their own.
const DefaultErrorCode = 1

// ContractError is a user-defined contract failure: Msg is delivered through
// the return call and Code becomes the process exit code.
type ContractError struct {
	Code uint64
	Msg  string
}

func (e *ContractError) Error() string {
	return e.Msg
}

// Fail returns a contract error with the given exit code and message.
func Fail(code uint64, msg string) error {
	return &ContractError{Code: code, Msg: msg}
}

// Failf is Fail with a formatted message.
func Failf(code uint64, format string, args ...any) error {
	return &ContractError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// exitOutcome maps the error returned by a contract main to its exit code and
// return payload.
func exitOutcome(err error) (uint64, string) {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code, ce.Msg
	}
	return DefaultErrorCode, err.Error()
}
