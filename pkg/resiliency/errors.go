// Package resiliency guards every external call: retry with exponential
// backoff and jitter, a three-state circuit breaker per named upstream, and
// the error classification both depend on.
package resiliency

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stable error codes surfaced to callers and reports.
// They MUST NOT change between releases.
const (
	CodeCircuitOpen     = "CIRCUIT_BREAKER_OPEN"
	CodeEmptyResponse   = "EMPTY_RESPONSE"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeProcessingError = "PROCESSING_ERROR"
	CodeCancelled       = "CANCELLED"
	CodeRateLimit       = "RATE_LIMIT"
)

// HTTPCode formats the stable code for an upstream HTTP status,
// e.g. HTTP_404.
func HTTPCode(status int) string {
	return fmt.Sprintf("HTTP_%d", status)
}

// CodedError is an error with a stable machine-readable code. Status is the
// upstream HTTP status when one applies, 0 otherwise.
type CodedError struct {
	Code    string
	Message string
	Status  int
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewHTTPError wraps an upstream HTTP failure with its HTTP_<status> code.
func NewHTTPError(status int, message string) *CodedError {
	return &CodedError{Code: HTTPCode(status), Message: message, Status: status}
}

// CodeOf extracts the stable code from err, or "" when it has none.
func CodeOf(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var co *CircuitOpenError
	if errors.As(err, &co) {
		return CodeCircuitOpen
	}
	return ""
}

// CircuitOpenError rejects a call while a breaker is open. RetryAfter is the
// remaining time until the breaker will admit a probe.
type CircuitOpenError struct {
	Upstream   string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit breaker open for %s, retry after %dms",
		CodeCircuitOpen, e.Upstream, e.RetryAfter.Milliseconds())
}

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	var co *CircuitOpenError
	return errors.As(err, &co)
}

// DefaultRetryablePatterns matches transient transport, quota, and upstream
// server failures. Substring match, case-insensitive, over both the error
// message and its stable code. The POSIX names cover errors bridged from
// other runtimes; the phrases cover Go's net errors.
func DefaultRetryablePatterns() []string {
	return []string{
		"ECONNRESET",
		"ETIMEDOUT",
		"ENOTFOUND",
		"EAI_AGAIN",
		"RATE_LIMIT",
		"429",
		"HTTP_5",
		"connection reset",
		"connection refused",
		"timeout",
		"no such host",
		"temporary failure",
	}
}

// Retryable reports whether err matches any of the given patterns. Breaker
// rejections are never retryable at the call site.
func Retryable(err error, patterns []string) bool {
	if err == nil || IsCircuitOpen(err) {
		return false
	}
	if len(patterns) == 0 {
		patterns = DefaultRetryablePatterns()
	}
	msg := strings.ToLower(err.Error())
	code := strings.ToLower(CodeOf(err))
	for _, p := range patterns {
		lp := strings.ToLower(p)
		if strings.Contains(msg, lp) || (code != "" && strings.Contains(code, lp)) {
			return true
		}
	}
	return false
}
