// Package analyzer is the public entry point: crawl a site, classify what it
// set, look for fingerprinting, and summarize.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
	"github.com/JakeFAU/cookie-crawler/internal/crawler"
	"github.com/JakeFAU/cookie-crawler/internal/metrics"
)

// IDGenerator creates run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Options selects crawl and analysis behavior for one invocation.
type Options struct {
	RespectRobots         bool
	UseConcurrency        bool
	ConcurrencyLimit      int
	DetectFingerprinting  bool
	RunConsentInteraction bool
	UserAgent             string
	// MaxAttempts bounds fetch attempts per page; zero uses the retry default.
	MaxAttempts int
}

// Result is the outcome of CrawlAndClassify.
type Result struct {
	RunID          string                        `json:"runId"`
	SeedURL        string                        `json:"seedUrl"`
	StartedAt      time.Time                     `json:"startedAt"`
	FinishedAt     time.Time                     `json:"finishedAt"`
	Classified     classify.Classification       `json:"classified"`
	Storage        map[string]cookie.PageStorage `json:"storage"`
	Fingerprinting map[cookie.Technique]bool     `json:"fingerprinting,omitempty"`
	Warnings       []string                      `json:"warnings"`
	Pages          []string                      `json:"pages"`
	Summary        Summary                       `json:"summary"`
}

// Analyzer owns the shared, read-only pieces of an analysis: the browser
// backend and the compiled heuristic rules.
type Analyzer struct {
	browser     crawler.Browser
	heuristic   *classify.Heuristic
	fingerprint *classify.FingerprintDetector
	clock       classify.Clock
	ids         IDGenerator
	logger      *zap.Logger
}

// New compiles rules and wires the collaborators.
func New(
	browser crawler.Browser,
	rules classify.RuleSet,
	clock classify.Clock,
	ids IDGenerator,
	logger *zap.Logger,
) (*Analyzer, error) {
	if browser == nil {
		return nil, fmt.Errorf("browser must not be nil")
	}
	heuristic, err := classify.NewHeuristic(rules)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		browser:     browser,
		heuristic:   heuristic,
		fingerprint: classify.NewFingerprintDetector(rules, heuristic, clock),
		clock:       clock,
		ids:         ids,
		logger:      logger.Named("analyzer"),
	}, nil
}

// CrawlAndClassify crawls seed up to budget pages and classifies every cookie
// seen. A seed that cannot be fetched yields an empty result and an error;
// every other problem is reported in Result.Warnings.
func (a *Analyzer) CrawlAndClassify(
	ctx context.Context,
	seed string,
	budget int,
	table *classify.ReferenceTable,
	opts Options,
) (Result, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("run id: %w", err)
	}
	result := Result{
		RunID:     runID,
		SeedURL:   seed,
		StartedAt: a.clock.Now(),
	}
	logger := a.logger.With(zap.String("run_id", runID), zap.String("seed", seed))

	ctrl := crawler.NewController(a.browser, crawler.NewPageRetry(opts.MaxAttempts), crawler.Options{
		RespectRobots:         opts.RespectRobots,
		UseConcurrency:        opts.UseConcurrency,
		Concurrency:           opts.ConcurrencyLimit,
		RunConsentInteraction: opts.RunConsentInteraction,
		UserAgent:             opts.UserAgent,
	}, logger)

	agg, err := ctrl.Run(ctx, seed, budget)
	if err != nil {
		metrics.ObserveAnalysis("failed")
		return result, fmt.Errorf("crawl %s: %w", seed, err)
	}

	classified := classify.NewClassifier(table, a.heuristic, a.clock).Classify(agg.Cookies())
	for category, cookies := range classified {
		for _, c := range cookies {
			metrics.ObserveClassification(string(category), string(c.Method))
		}
	}

	result.Classified = classified
	result.Storage = agg.Storage
	result.Pages = agg.Pages
	result.Warnings = append(table.Warnings(), agg.Warnings...)
	if opts.DetectFingerprinting {
		result.Fingerprinting = a.fingerprint.Detect(classify.FingerprintInput{
			Observations: agg.Observations,
			Pages:        agg.Pages,
			Storage:      agg.Storage,
		})
		for technique, found := range result.Fingerprinting {
			if found {
				metrics.ObserveFingerprint(string(technique))
			}
		}
	}
	result.FinishedAt = a.clock.Now()
	result.Summary = Summarize(classified, result.FinishedAt)
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	metrics.ObserveAnalysis("succeeded")

	logger.Info("analysis finished",
		zap.Int("pages", len(result.Pages)),
		zap.Int("cookies", result.Summary.Total),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}
