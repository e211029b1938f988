package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

type retryable interface {
	Retryable() bool
}

// IsTransientError reports whether err is worth retrying later.
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused")
}

// IsFatalError reports infrastructure failures after which the consumer
// channel must be rebuilt.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "connection closed") || strings.Contains(msg, "channel closed") ||
		strings.Contains(msg, "channel/connection is not open") {
		return true
	}
	if strings.Contains(msg, "invalid credentials") || strings.Contains(msg, "access denied") {
		return true
	}
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "out of memory")
}
