package modelgateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is the unified error interface returned by Gateway implementations.
// Transport/rate-limit/server errors are Retryable; the Gateway owns its own
// backoff over them (spec §7). SchemaParseError is never retryable locally.
type Error interface {
	error
	Provider() string
	StatusCode() int
	Retryable() bool
	RetryAfter() *time.Duration
}

type httpErrorBase struct {
	provider   string
	statusCode int
	message    string
	retryable  bool
	retryAfter *time.Duration
}

func (e *httpErrorBase) Error() string {
	msg := strings.TrimSpace(e.message)
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s error (status=%d): %s", e.provider, e.statusCode, msg)
}
func (e *httpErrorBase) Provider() string           { return e.provider }
func (e *httpErrorBase) StatusCode() int            { return e.statusCode }
func (e *httpErrorBase) Retryable() bool            { return e.retryable }
func (e *httpErrorBase) RetryAfter() *time.Duration { return e.retryAfter }

// TransportRetryableError covers transient transport/rate-limit/server
// failures. The Gateway's own backoff retries these; once exhausted, the
// Actor/Adversary fail the attempt (spec §7).
type TransportRetryableError struct{ httpErrorBase }

// AuthenticationError, InvalidRequestError and ContextLengthError are
// non-retryable HTTP classifications kept distinct so callers can log them
// precisely.
type AuthenticationError struct{ httpErrorBase }
type InvalidRequestError struct{ httpErrorBase }
type ContextLengthError struct{ httpErrorBase }

// SchemaParseError means the Gateway returned a payload that does not match
// the requested schema. No local retry; the Actor/Adversary fails the
// attempt (spec §7).
type SchemaParseError struct {
	Schema string
	Cause  error
}

func (e *SchemaParseError) Error() string {
	return fmt.Sprintf("schema parse error (schema=%s): %v", e.Schema, e.Cause)
}
func (e *SchemaParseError) Unwrap() error { return e.Cause }

// ErrorFromHTTPStatus classifies a vendor HTTP failure into the unified
// taxonomy above.
func ErrorFromHTTPStatus(provider string, statusCode int, message string, retryAfter *time.Duration) error {
	base := httpErrorBase{
		provider:   strings.TrimSpace(provider),
		statusCode: statusCode,
		message:    message,
		retryAfter: retryAfter,
	}
	switch statusCode {
	case 400, 422:
		base.retryable = false
		return &InvalidRequestError{base}
	case 401, 403:
		base.retryable = false
		return &AuthenticationError{base}
	case 413:
		base.retryable = false
		return &ContextLengthError{base}
	case 408, 429, 500, 502, 503, 504:
		base.retryable = true
		return &TransportRetryableError{base}
	default:
		// Spec: unknown errors default to retryable.
		base.retryable = true
		return &TransportRetryableError{base}
	}
}

// ParseRetryAfter parses a Retry-After header value: integer seconds or an
// HTTP-date (RFC 7231).
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

func IsRetryable(err error) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

func retryAfterOf(err error) *time.Duration {
	var e Error
	if errors.As(err, &e) {
		return e.RetryAfter()
	}
	return nil
}
