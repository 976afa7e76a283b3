// Package resilience holds the error taxonomy for upstream failures and a
// retry helper with exponential backoff.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/hydromap/fountains-server/internal/model"
)

// SourceUnavailableError means a whole source fetch failed for a bounding
// box. The affected tiles keep serving their previous artifact, if any,
// until a later refresh succeeds.
type SourceUnavailableError struct {
	Source model.Source
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// RateLimitedError is a distinguished SourceUnavailableError raised on
// upstream 429 responses. It asks the caller for a backoff delay before the
// next population attempt rather than an immediate retry.
type RateLimitedError struct {
	SourceUnavailableError
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("source %s rate limited: %v", e.Source, e.Err)
}

// Unwrap returns the embedded source failure. Without it the promoted
// Unwrap from the embedded struct skips straight to the cause and
// errors.As never sees the *SourceUnavailableError in the chain.
func (e *RateLimitedError) Unwrap() error {
	return &e.SourceUnavailableError
}

// NewSourceUnavailable wraps err as a source-level failure.
func NewSourceUnavailable(src model.Source, err error) error {
	return &SourceUnavailableError{Source: src, Err: err}
}

// NewRateLimited wraps err as an upstream rate-limit rejection.
func NewRateLimited(src model.Source, retryAfter time.Duration, err error) error {
	return &RateLimitedError{
		SourceUnavailableError: SourceUnavailableError{Source: src, Err: err},
		RetryAfter:             retryAfter,
	}
}

// IsSourceUnavailable reports whether any error in the chain is a
// source-level fetch failure (including rate limits).
func IsSourceUnavailable(err error) bool {
	var se *SourceUnavailableError
	return errors.As(err, &se)
}

// IsRateLimited reports whether any error in the chain is an upstream
// rate-limit rejection.
func IsRateLimited(err error) bool {
	var re *RateLimitedError
	return errors.As(err, &re)
}

// RetryAfterHint extracts the upstream's backoff hint from a rate-limit
// error in the chain; zero when absent.
func RetryAfterHint(err error) time.Duration {
	var re *RateLimitedError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

// ErrIllegalState marks a violated core invariant. It is fatal to the
// current operation and is never retried.
var ErrIllegalState = errors.New("illegal state")

// IllegalStatef builds an ErrIllegalState with context.
func IllegalStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalState, fmt.Sprintf(format, args...))
}

// IsTransient returns true if the error matches common transient network
// patterns (timeouts, connection resets, DNS failures) or is an upstream
// rate limit.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if IsRateLimited(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
