package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// StatusError is returned by backends when a page answers with an HTTP error.
type StatusError struct {
	URL  string
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d fetching %s", e.Code, e.URL)
	}
	return fmt.Sprintf("status %d fetching %s: %v", e.Code, e.URL, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// CheckStatus applies the status policy shared by every backend: a page that
// answers 4xx or 5xx was not fetched.
func CheckStatus(pageURL string, code int) error {
	if code < http.StatusBadRequest {
		return nil
	}
	return &StatusError{URL: pageURL, Code: code}
}

// PageRetry retries transient page failures with capped, jittered backoff.
// Client errors and cancellations are final.
type PageRetry struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
}

// NewPageRetry allows up to attempts fetches per page; values below one mean three.
func NewPageRetry(attempts int) *PageRetry {
	if attempts < 1 {
		attempts = 3
	}
	return &PageRetry{attempts: attempts, base: 300 * time.Millisecond, ceiling: 4 * time.Second}
}

// ShouldRetry reports whether attempt, which just failed with err, gets another try.
func (p *PageRetry) ShouldRetry(err error, attempt int) bool {
	switch {
	case err == nil, attempt >= p.attempts:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrInvalidSeed):
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff is the pause before the attempt after attempt: half the doubled
// delay plus random jitter of up to the other half.
func (p *PageRetry) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.ceiling
	if shift := attempt - 1; shift < 16 {
		if d := p.base << shift; d < p.ceiling {
			delay = d
		}
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half)
}
