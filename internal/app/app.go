// Package app initializes and holds the long-lived services one analysis
// needs, acting as a dependency injection container shared by the CLI and
// the HTTP service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/clock/system"
	"github.com/JakeFAU/cookie-crawler/internal/config"
	"github.com/JakeFAU/cookie-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/cookie-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/cookie-crawler/internal/fetcher/headless"
	rodfetcher "github.com/JakeFAU/cookie-crawler/internal/fetcher/rod"
	"github.com/JakeFAU/cookie-crawler/internal/id/uuid"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
	"github.com/JakeFAU/cookie-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/cookie-crawler/internal/reference"
	"github.com/JakeFAU/cookie-crawler/internal/robots"
	pgstore "github.com/JakeFAU/cookie-crawler/internal/storage/postgres"
	"github.com/JakeFAU/cookie-crawler/internal/storage/sqlite"
)

// ErrUnknownBackend is returned for a crawler.backend that names no browser.
var ErrUnknownBackend = errors.New("unknown browser backend")

// App holds the shared services for one process: the browser backend, the
// analyzer, the reference table, and the report sinks.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	browser  crawler.Browser
	analyzer *analyzer.Analyzer
	table    *classify.ReferenceTable
	history  *sqlite.History
	reports  []jobs.ReportStore
	closers  []func() error
}

// Analyzer returns the configured analyzer.
func (a *App) Analyzer() *analyzer.Analyzer {
	return a.analyzer
}

// Table returns the loaded reference table.
func (a *App) Table() *classify.ReferenceTable {
	return a.table
}

// Reports returns every configured report sink.
func (a *App) Reports() []jobs.ReportStore {
	return a.reports
}

// History returns the local run history, or nil when disabled.
func (a *App) History() *sqlite.History {
	return a.history
}

// Options returns the analysis options derived from configuration.
func (a *App) Options() analyzer.Options {
	return Options(a.cfg)
}

// New builds every service the configuration asks for. It fails fast if a
// critical service cannot be initialized; Close releases whatever was opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services",
		zap.String("backend", cfg.Crawler.Backend),
		zap.String("reference_source", cfg.Reference.Source),
	)

	rules, err := LoadRules(cfg.Rules.Path)
	if err != nil {
		return nil, err
	}

	a.table, err = LoadReference(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("reference table loaded",
		zap.Int("entries", a.table.Len()),
		zap.Int("skipped_rows", len(a.table.Warnings())),
	)

	browser, closeBrowser, err := NewBrowser(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.browser = browser
	a.closers = append(a.closers, closeBrowser)

	a.analyzer, err = analyzer.New(browser, rules, system.New(), uuid.New(), logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("analyzer init failed: %w", err)
	}

	if err := a.setupReportStores(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) setupReportStores(ctx context.Context) error {
	if a.cfg.History.Enabled {
		path := a.cfg.History.Path
		if path == "" {
			path = sqlite.DefaultPath()
		}
		history, err := sqlite.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("history init failed: %w", err)
		}
		a.history = history
		a.reports = append(a.reports, history)
		a.closers = append(a.closers, history.Close)
		a.logger.Debug("run history enabled", zap.String("path", path))
	}
	if a.cfg.DB.DSN != "" {
		store, err := pgstore.NewReportStore(ctx, pgstore.ReportStoreConfig{
			DSN:   a.cfg.DB.DSN,
			Table: a.cfg.DB.ReportsTable,
		})
		if err != nil {
			return fmt.Errorf("report store init failed: %w", err)
		}
		a.reports = append(a.reports, store)
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		a.logger.Info("postgres report store initialized", zap.String("table", a.cfg.DB.ReportsTable))
	}
	return nil
}

// Close releases services in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
		return err
	}
	return nil
}

// Options maps the crawler section onto analyzer.Options.
func Options(cfg config.Config) analyzer.Options {
	return analyzer.Options{
		RespectRobots:         cfg.Crawler.RespectRobots,
		UseConcurrency:        cfg.Crawler.UseConcurrency,
		ConcurrencyLimit:      cfg.Crawler.Concurrency,
		DetectFingerprinting:  cfg.Crawler.DetectFingerprinting,
		RunConsentInteraction: cfg.Crawler.ConsentInteraction,
		UserAgent:             cfg.Crawler.UserAgent,
		MaxAttempts:           cfg.Crawler.MaxAttempts,
	}
}

// LoadRules reads the heuristic rule file, or returns the built-in rules when
// path is empty.
func LoadRules(path string) (classify.RuleSet, error) {
	if path == "" {
		return classify.DefaultRules(), nil
	}
	rules, err := classify.LoadRules(path)
	if err != nil {
		return classify.RuleSet{}, fmt.Errorf("load rules %s: %w", path, err)
	}
	return rules, nil
}

// LoadReference builds the reference table from the configured source. A
// missing local CSV yields an empty table so heuristics still run.
func LoadReference(ctx context.Context, cfg config.Config, logger *zap.Logger) (*classify.ReferenceTable, error) {
	var src reference.Source
	switch cfg.Reference.Source {
	case config.ReferencePostgres:
		pg, err := reference.NewPostgresSource(ctx, cfg.DB.DSN, cfg.Reference.Table)
		if err != nil {
			return nil, fmt.Errorf("reference source init failed: %w", err)
		}
		defer pg.Close()
		src = pg
	default:
		path := cfg.Reference.Path
		switch {
		case path == "":
			logger.Warn("no reference database configured, using heuristics only")
		case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
			src = reference.HTTPSource{URL: path, Client: http.DefaultClient}
		default:
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				logger.Warn("reference database not found, using heuristics only; run update-db to fetch it",
					zap.String("path", path))
			} else {
				src = reference.FileSource{Path: path}
			}
		}
	}
	table, err := reference.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load reference table: %w", err)
	}
	return table, nil
}

// NewBrowser constructs the configured crawler.Browser and a func that
// releases it.
func NewBrowser(cfg config.Config, logger *zap.Logger) (crawler.Browser, func() error, error) {
	rate := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.RateLimitRPS,
		DefaultBurst: cfg.Crawler.RateLimitBurst,
	})
	loader := robots.NewLoader(nil, cfg.Crawler.UserAgent, logger)
	switch cfg.Crawler.Backend {
	case config.BackendChromedp:
		b, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Crawler.Concurrency,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			ShowBrowser:       !cfg.Crawler.Headless,
		}, loader, rate, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("chromedp init failed: %w", err)
		}
		return b, func() error { b.Close(); return nil }, nil
	case config.BackendRod:
		b, err := rodfetcher.New(rodfetcher.Config{
			MaxParallel:       cfg.Crawler.Concurrency,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			ShowBrowser:       !cfg.Crawler.Headless,
		}, loader, rate, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("rod init failed: %w", err)
		}
		return b, b.Close, nil
	case config.BackendHTTP:
		b := collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.NavTimeout(),
		}, rate, logger)
		return b, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Crawler.Backend)
	}
}
