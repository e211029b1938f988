package actinia

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// SubmissionFailed is returned when the engine rejected a process chain or
// its acknowledgment could not be read. StatusCode is zero when no response
// was received.
type SubmissionFailed struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *SubmissionFailed) Error() string {
	switch {
	case e.StatusCode != 0 && e.Cause != nil:
		return fmt.Sprintf("submission failed with status %d: %v", e.StatusCode, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("submission failed with status %d: %s", e.StatusCode, truncate(e.Body))
	default:
		return fmt.Sprintf("submission failed: %v", e.Cause)
	}
}

func (e *SubmissionFailed) Unwrap() error {
	return e.Cause
}

// TransientOrFatalError is an engine call that produced no usable answer:
// an unexpected status code, a timeout, a transport failure or an open
// circuit. The caller decides whether to retry, guided by Retryable.
type TransientOrFatalError struct {
	Op         string
	StatusCode int
	Body       string
	Cause      error
}

func (e *TransientOrFatalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, truncate(e.Body))
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *TransientOrFatalError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether repeating the call later may succeed.
func (e *TransientOrFatalError) Retryable() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Cause, context.Canceled)
	}
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// ParseError is an engine response body that did not have the expected shape.
type ParseError struct {
	Op    string
	Body  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unexpected response body: %v", e.Op, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err, anywhere in its chain, is a retryable
// engine failure.
func IsRetryable(err error) bool {
	var tf *TransientOrFatalError
	return errors.As(err, &tf) && tf.Retryable()
}

const maxBodyInError = 512

func truncate(s string) string {
	if len(s) <= maxBodyInError {
		return s
	}
	return s[:maxBodyInError] + "..."
}
