package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

func TestPageRetryShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewPageRetry(3)
	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"plain error", errors.New("boom"), 1, true},
		{"attempts exhausted", errors.New("boom"), 3, false},
		{"canceled", fmt.Errorf("wrap: %w", context.Canceled), 1, false},
		{"deadline", context.DeadlineExceeded, 1, false},
		{"invalid seed", fmt.Errorf("%w: bad", ErrInvalidSeed), 1, false},
		{"net timeout", timeoutErr{timeout: true}, 1, true},
		{"net refused", timeoutErr{}, 1, false},
		{"server error", &StatusError{URL: "https://a.test/", Code: 503}, 1, true},
		{"rate limited", fmt.Errorf("open: %w", &StatusError{Code: 429}), 2, true},
		{"not found", &StatusError{Code: 404}, 1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, p.ShouldRetry(tc.err, tc.attempt))
		})
	}
}

func TestPageRetryDefaults(t *testing.T) {
	t.Parallel()

	p := NewPageRetry(0)
	assert.Equal(t, 3, p.attempts)
	assert.False(t, p.ShouldRetry(errors.New("boom"), 3))
}

func TestPageRetryBackoffBounded(t *testing.T) {
	t.Parallel()

	p := NewPageRetry(5)
	assert.GreaterOrEqual(t, p.Backoff(1), 150*time.Millisecond)
	assert.Less(t, p.Backoff(1), 300*time.Millisecond)
	for attempt := 0; attempt < 40; attempt++ {
		d := p.Backoff(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	t.Parallel()

	inner := errors.New("Service Unavailable")
	err := &StatusError{URL: "https://a.test/x", Code: 503, Err: inner}
	assert.Equal(t, "status 503 fetching https://a.test/x: Service Unavailable", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "status 404 fetching https://a.test/", (&StatusError{URL: "https://a.test/", Code: 404}).Error())
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{0, 200, 204, 304} {
		assert.NoError(t, CheckStatus("https://a.test/", code), code)
	}
	for _, code := range []int{400, 404, 429, 500, 503} {
		err := CheckStatus("https://a.test/", code)
		var status *StatusError
		require.ErrorAs(t, err, &status, code)
		assert.Equal(t, code, status.Code)
		assert.Equal(t, "https://a.test/", status.URL)
	}
}
