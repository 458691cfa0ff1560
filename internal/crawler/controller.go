package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
	"github.com/JakeFAU/cookie-crawler/internal/metrics"
)

// Controller runs single-host crawls against a Browser.
type Controller struct {
	browser Browser
	retry   RetryPolicy
	opts    Options
	logger  *zap.Logger

	mu    sync.Mutex
	state State
}

// NewController wires a controller. A nil retry policy disables retries.
func NewController(browser Browser, retry RetryPolicy, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		browser: browser,
		retry:   retry,
		opts:    opts,
		logger:  logger.Named("crawler"),
		state:   StateIdle,
	}
}

// State returns the current state of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

type pageResult struct {
	seq  int
	url  *url.URL
	data PageData
	err  error
}

// crawlRun is the per-invocation crawl state. Only the coordinating goroutine
// touches it after the seed page has been fetched.
type crawlRun struct {
	seed       *url.URL
	rules      RobotsRules
	agent      string
	frontier   *frontier
	dispatched int
	results    []pageResult
	warnings   []string
}

func (r *crawlRun) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *crawlRun) allowed(u *url.URL) bool {
	if r.rules == nil {
		return true
	}
	return r.rules.TestAgent(robotsPath(u), r.agent)
}

func (r *crawlRun) nextSeq() int {
	seq := r.dispatched
	r.dispatched++
	return seq
}

// Run crawls from seed until the queue drains, the budget is spent, or ctx ends.
func (c *Controller) Run(ctx context.Context, seed string, budget int) (Aggregate, error) {
	if budget < 1 {
		return Aggregate{}, ErrInvalidBudget
	}
	seedURL, err := ValidateSeedURL(seed)
	if err != nil {
		return Aggregate{}, err
	}
	defer c.setState(StateDone)

	run := &crawlRun{
		seed:  seedURL,
		agent: c.opts.userAgent(),
	}

	scope := budget
	if c.opts.RespectRobots {
		c.setState(StateFetchingRobots)
		rules, rerr := c.browser.FetchRobotsRules(ctx, seedURL)
		switch {
		case rerr != nil:
			run.warn("robots unavailable for %s: %v", seedURL.Host, rerr)
			metrics.ObserveRobots("error")
			scope = 1
		case rules == nil:
			run.warn("robots unavailable for %s: no rules published", seedURL.Host)
			metrics.ObserveRobots("missing")
			scope = 1
		default:
			run.rules = rules
			metrics.ObserveRobots("ok")
		}
	}
	run.frontier = newFrontier(scope)

	if !run.allowed(seedURL) {
		run.warn("seed disallowed by robots.txt")
		c.logger.Info("seed disallowed by robots", zap.String("seed", seedURL.String()))
		return c.aggregate(run), nil
	}

	c.setState(StateCrawling)
	run.frontier.push(seedURL)
	first, _ := run.frontier.next()
	seedResult := c.visit(ctx, first, run.nextSeq())
	if seedResult.err != nil {
		c.logger.Warn("seed fetch failed", zap.String("url", first.String()), zap.Error(seedResult.err))
		return Aggregate{}, fmt.Errorf("%w: %s: %w", ErrSeedFetch, first, seedResult.err)
	}
	c.merge(ctx, run, seedResult)

	if c.opts.concurrent() {
		c.crawlConcurrent(ctx, run)
	} else {
		c.crawlSequential(ctx, run)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		run.warn("crawl canceled: %v", ctxErr)
	}
	c.logger.Info("crawl finished",
		zap.String("seed", seedURL.String()),
		zap.Int("pages", run.frontier.visitedCount()),
		zap.Int("warnings", len(run.warnings)),
	)
	return c.aggregate(run), nil
}

func (c *Controller) crawlSequential(ctx context.Context, run *crawlRun) {
	for ctx.Err() == nil {
		u, ok := run.frontier.next()
		if !ok {
			return
		}
		c.merge(ctx, run, c.visit(ctx, u, run.nextSeq()))
	}
}

// crawlConcurrent keeps at most Concurrency fetches in flight. Only this
// goroutine dequeues from the frontier and merges results.
func (c *Controller) crawlConcurrent(ctx context.Context, run *crawlRun) {
	limit := c.opts.Concurrency
	var g errgroup.Group
	g.SetLimit(limit)
	results := make(chan pageResult)
	inFlight := 0

	for {
		for inFlight < limit && ctx.Err() == nil {
			u, ok := run.frontier.next()
			if !ok {
				break
			}
			seq := run.nextSeq()
			inFlight++
			g.Go(func() error {
				results <- c.visit(ctx, u, seq)
				return nil
			})
		}
		if inFlight == 0 {
			break
		}
		res := <-results
		inFlight--
		c.merge(ctx, run, res)
	}
	_ = g.Wait()
}

// visit fetches one page with retries and records its metrics.
func (c *Controller) visit(ctx context.Context, u *url.URL, seq int) pageResult {
	start := time.Now()
	data, err := c.fetchWithRetry(ctx, u)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObservePage(u.String(), status, time.Since(start))
	return pageResult{seq: seq, url: u, data: data, err: err}
}

func (c *Controller) fetchWithRetry(ctx context.Context, u *url.URL) (PageData, error) {
	for attempt := 1; ; attempt++ {
		data, err := c.fetchOnce(ctx, u)
		if err == nil {
			return data, nil
		}
		if c.retry == nil || ctx.Err() != nil || !c.retry.ShouldRetry(err, attempt) {
			return PageData{}, err
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Debug("retrying page",
			zap.String("url", u.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		metrics.ObserveRetry(u.String())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return PageData{}, fmt.Errorf("retry wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Controller) fetchOnce(ctx context.Context, u *url.URL) (PageData, error) {
	page, err := c.browser.OpenPage(ctx, u.String())
	if err != nil {
		return PageData{}, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if c.opts.RunConsentInteraction {
		if clicked := c.browser.InteractWithConsentBanner(ctx, page); clicked {
			c.logger.Debug("consent banner dismissed", zap.String("url", u.String()))
		}
	}

	data, err := page.Extract(ctx)
	if err != nil {
		return PageData{}, fmt.Errorf("extract page: %w", err)
	}
	return data, nil
}

// merge folds one page result into the run and enqueues its in-scope links.
func (c *Controller) merge(ctx context.Context, run *crawlRun, res pageResult) {
	if res.err != nil {
		if ctx.Err() != nil && ctxDone(res.err) {
			return
		}
		run.warn("fetch %s: %v", res.url, res.err)
		c.logger.Warn("page skipped", zap.String("url", res.url.String()), zap.Error(res.err))
		return
	}
	run.results = append(run.results, res)
	run.warnings = append(run.warnings, res.data.Warnings...)

	base := res.url
	if res.data.FinalURL != "" {
		if final, err := url.Parse(res.data.FinalURL); err == nil && final.Host != "" {
			base = final
		}
	}
	enqueued := 0
	for _, href := range res.data.Links {
		link, ok := resolveLink(base, href)
		if !ok || !sameHost(link, run.seed) || !run.allowed(link) {
			continue
		}
		if run.frontier.push(link) {
			enqueued++
		}
	}
	c.logger.Debug("page merged",
		zap.String("url", res.url.String()),
		zap.Int("cookies", len(res.data.Cookies)),
		zap.Int("links", len(res.data.Links)),
		zap.Int("enqueued", enqueued),
	)
}

// ctxDone reports whether err is only the echo of a canceled crawl.
func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Controller) aggregate(run *crawlRun) Aggregate {
	sort.SliceStable(run.results, func(i, j int) bool {
		return run.results[i].seq < run.results[j].seq
	})
	agg := Aggregate{
		Storage:  make(map[string]cookie.PageStorage, len(run.results)),
		Warnings: append([]string(nil), run.warnings...),
	}
	for _, res := range run.results {
		pageURL := res.url.String()
		agg.Pages = append(agg.Pages, pageURL)
		for _, ck := range res.data.Cookies {
			agg.Observations = append(agg.Observations, cookie.Observation{Cookie: ck, PageURL: pageURL})
		}
		storage := cookie.NewPageStorage()
		for _, entry := range res.data.Storage {
			storage.Add(entry)
		}
		agg.Storage[pageURL] = storage
	}
	return agg
}
