package resilience

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/hydromap/fountains-server/internal/model"
)

func TestSourceUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewSourceUnavailable(model.SourceOSM, cause)

	assert.True(t, IsSourceUnavailable(err))
	assert.False(t, IsRateLimited(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "osm")
}

func TestRateLimited(t *testing.T) {
	err := NewRateLimited(model.SourceWikidata, 30*time.Second, errors.New("http 429"))

	// A rate limit is a distinguished kind of source unavailability.
	assert.True(t, IsRateLimited(err))
	assert.True(t, IsSourceUnavailable(err))
	assert.Equal(t, 30*time.Second, RetryAfterHint(err))
	assert.Contains(t, err.Error(), "rate limited")

	var se *SourceUnavailableError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, model.SourceWikidata, se.Source)
}

func TestErrorClassification_SurvivesWrapping(t *testing.T) {
	err := eris.Wrap(NewRateLimited(model.SourceOSM, time.Second, errors.New("429")), "fetch tile")

	assert.True(t, IsRateLimited(err))
	assert.True(t, IsSourceUnavailable(err))
	assert.Equal(t, time.Second, RetryAfterHint(err))
}

func TestRetryAfterHint_Absent(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryAfterHint(errors.New("plain")))
	assert.Equal(t, time.Duration(0), RetryAfterHint(NewSourceUnavailable(model.SourceOSM, errors.New("x"))))
	assert.Equal(t, time.Duration(0), RetryAfterHint(nil))
}

func TestIllegalState(t *testing.T) {
	err := IllegalStatef("tiles list empty for %s", "query")

	assert.ErrorIs(t, err, ErrIllegalState)
	assert.Contains(t, err.Error(), "tiles list empty for query")
	assert.False(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "rate limited", err: NewRateLimited(model.SourceOSM, 0, errors.New("429")), expected: true},
		{name: "connection reset", err: syscall.ECONNRESET, expected: true},
		{name: "connection refused", err: syscall.ECONNREFUSED, expected: true},
		{name: "wrapped reset string", err: errors.New("read tcp: connection reset by peer"), expected: true},
		{name: "dns failure", err: errors.New("dial tcp: lookup x: no such host"), expected: true},
		{name: "io timeout", err: errors.New("i/o timeout"), expected: true},
		{name: "plain error", err: errors.New("boom"), expected: false},
		{name: "illegal state", err: IllegalStatef("bad"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
