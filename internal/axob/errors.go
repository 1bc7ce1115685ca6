package axob

import (
	"fmt"
	"time"
)

// ErrorCode classifies the non-fatal conditions the engine can surface.
// Modeled on the teacher's ErrorCode/TradSysError pair, narrowed to the
// taxonomy this engine actually raises.
type ErrorCode string

const (
	ErrBitwidthOverflow  ErrorCode = "BITWIDTH_OVERFLOW"
	ErrPrecisionMismatch ErrorCode = "PRECISION_MISMATCH"
	ErrDuplicateOrOOO    ErrorCode = "DUPLICATE_OR_OUT_OF_ORDER"
	ErrUnknownField      ErrorCode = "UNKNOWN_FIELD"
	ErrDanglingRef       ErrorCode = "DANGLING_REFERENCE"
)

// LOBError is the structured error type for non-fatal engine
// conditions (§7). The engine's message handlers have no error result:
// they log these conditions through zap and continue, and none of them
// constructs or returns a LOBError.
type LOBError struct {
	Code      ErrorCode
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
	Cause     error
}

func (e *LOBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LOBError) Unwrap() error { return e.Cause }

func (e *LOBError) WithDetail(key string, value interface{}) *LOBError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *LOBError) WithCause(cause error) *LOBError {
	e.Cause = cause
	return e
}

func newErr(code ErrorCode, format string, args ...interface{}) *LOBError {
	return &LOBError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// InvariantError is raised by assertInvariants (and any internal
// consistency check) and is always fatal: it indicates a bug in the
// engine, not bad feed data, and is the only error kind this package
// panics with. The Multiplexer recovers it at the per-instrument
// dispatch boundary (see internal/mux) and reports it as a failure to
// that instrument's circuit breaker, which opens after three
// consecutive failures.
type InvariantError struct {
	SecurityID uint32
	Message    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated for security %d: %s", e.SecurityID, e.Message)
}

func panicInvariant(securityID uint32, format string, args ...interface{}) {
	panic(&InvariantError{SecurityID: securityID, Message: fmt.Sprintf(format, args...)})
}
