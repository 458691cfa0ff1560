// Package ratelimit paces page loads per host so a crawl stays polite while it
// fans out. Hosts may be slowed further by a robots.txt Crawl-delay.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/cookie-crawler/internal/metrics"
)

// Config sets the pace every host starts with. A non-positive RPS means no
// limit until a Crawl-delay is seen.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// Limiter holds one token bucket per host. A nil *Limiter never blocks.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
	pace  rate.Limit
	burst int
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{hosts: make(map[string]*rate.Limiter), pace: rate.Inf, burst: max(cfg.DefaultBurst, 1)}
	if cfg.DefaultRPS > 0 {
		l.pace = rate.Limit(cfg.DefaultRPS)
	}
	return l
}

// Wait blocks until pageURL's host may be loaded again.
func (l *Limiter) Wait(ctx context.Context, pageURL string) error {
	if l == nil {
		return nil
	}
	host := hostKey(pageURL)
	began := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("wait for %s: %w", host, err)
	}
	if waited := time.Since(began); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// CrawlDelay slows pageURL's host to one load per delay. It never speeds a
// host up.
func (l *Limiter) CrawlDelay(pageURL string, delay time.Duration) {
	if l == nil || delay <= 0 {
		return
	}
	b := l.bucket(hostKey(pageURL))
	if every := rate.Every(delay); every < b.Limit() {
		b.SetLimit(every)
		b.SetBurst(1)
	}
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.pace, l.burst)
		l.hosts[host] = b
	}
	return b
}

func hostKey(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
