package plan

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed request input. Surfaced as a
// client error.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError reports a transport, auth, or response-format failure from
// the completion API. Never retried.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s failed", e.Op)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ExtractionError means no JSON candidate could be located in the model
// output. Only the raw length is recorded to keep logs bounded.
type ExtractionError struct {
	RawLen int
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no JSON payload found in model output (%d bytes)", e.RawLen)
}

// ParseError means an extracted candidate was not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parsing model output: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned when the retry budget runs out. It carries
// the last underlying error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// NotificationError reports a failed email send. Best-effort only: logged,
// never propagated past the orchestrator, never changes plan state.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string { return fmt.Sprintf("sending notification: %v", e.Err) }

func (e *NotificationError) Unwrap() error { return e.Err }

// IsParseClass reports whether err is a parse-class failure (extraction or
// JSON decode), the only class the retry policy re-attempts.
func IsParseClass(err error) bool {
	var ex *ExtractionError
	var pe *ParseError
	return errors.As(err, &ex) || errors.As(err, &pe)
}
