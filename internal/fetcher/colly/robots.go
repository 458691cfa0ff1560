package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/cookie-crawler/internal/crawler"
	"github.com/JakeFAU/cookie-crawler/internal/metrics"
)

const robotsAttempts = 4

// robotsTransport re-sends robots.txt requests that stall while connecting.
// Any other failure, or running out of attempts, is handed back so the
// controller falls back to crawling the seed host without rules.
type robotsTransport struct {
	base  http.RoundTripper
	delay func(attempt int) time.Duration
	wait  func(ctx context.Context, d time.Duration) error
}

func newRobotsTransport(base http.RoundTripper) *robotsTransport {
	return &robotsTransport{
		base:  base,
		delay: crawler.NewPageRetry(robotsAttempts).Backoff,
		wait:  pause,
	}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots request is nil")
	}
	for attempt := 1; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		switch {
		case err == nil:
			return resp, nil
		case !stalledConnect(err):
			return nil, fmt.Errorf("robots fetch %s: %w", req.URL.Host, err)
		case attempt >= robotsAttempts:
			metrics.ObserveRobots("tls_timeout")
			return nil, fmt.Errorf("robots fetch %s gave up after %d attempts: %w", req.URL.Host, attempt, err)
		}
		if err := t.wait(req.Context(), t.delay(attempt)); err != nil {
			return nil, err
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// stalledConnect matches dial and handshake timeouts.
func stalledConnect(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "handshake timeout")
}
