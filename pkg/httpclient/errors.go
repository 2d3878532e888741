package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors classifying upstream API failures. Callers branch on these
// with errors.Is to decide whether a fetch target failed permanently or the
// whole run should abort.
var (
	// ErrAuth indicates the upstream rejected our credentials (401/403).
	// Never retried: the same request will keep failing.
	ErrAuth = errors.New("upstream authentication failed")

	// ErrClient indicates a non-retryable 4xx response (bad parameters,
	// missing resource). The request itself is at fault.
	ErrClient = errors.New("upstream rejected request")

	// ErrTransient indicates a retryable condition: 429, 5xx, or a network
	// failure. The client retries these until the attempt budget runs out.
	ErrTransient = errors.New("transient upstream failure")

	// ErrRetriesExhausted is returned once the attempt budget is spent on
	// transient failures. It wraps the last transient error observed.
	ErrRetriesExhausted = errors.New("retry budget exhausted")
)

// maxErrorBodyBytes caps how much of an error response body is retained.
const maxErrorBodyBytes = 4096

// StatusError describes a non-2xx upstream response. It unwraps to one of the
// class sentinels above so callers can use errors.Is without inspecting codes.
type StatusError struct {
	StatusCode int
	Body       string
	class      error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.class
}

// newStatusError consumes and closes the response body and builds a
// StatusError classified by status code.
func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = resp.Body.Close()

	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		class:      classifyStatus(resp.StatusCode),
	}
}

// classifyStatus maps an HTTP status code to its error class.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrTransient
	default:
		return ErrClient
	}
}

// IsRetryable reports whether the error warrants another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
