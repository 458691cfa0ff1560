package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
	"github.com/JakeFAU/cookie-crawler/internal/app"
	"github.com/JakeFAU/cookie-crawler/internal/config"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
	"github.com/JakeFAU/cookie-crawler/internal/report"
	gcsstorage "github.com/JakeFAU/cookie-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/cookie-crawler/internal/storage/local"
)

type analyzeOptions struct {
	pages            int
	database         string
	format           string
	output           string
	backend          string
	concurrent       bool
	noConsent        bool
	showBrowser      bool
	noFingerprinting bool
	ignoreRobots     bool
	rules            string
}

// newAnalyzeCmd creates the 'analyze' subcommand.
func newAnalyzeCmd() *cobra.Command {
	return newAnalyzeCmdWithOptions(&analyzeOptions{})
}

func newAnalyzeCmdWithOptions(opts *analyzeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Crawl a site and report the cookies it sets",
		Long: `Crawls up to --pages pages of one site, starting at <url>, then
classifies every cookie seen and prints a report. A URL without a scheme is
treated as https.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.pages, "pages", "p", 0, "maximum pages to visit (default from crawler.max_pages)")
	f.StringVarP(&opts.database, "database", "d", "", "reference CSV path or URL (default from reference.path)")
	f.StringVarP(&opts.format, "format", "f", "", "report format: text, json, markdown")
	f.StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")
	f.StringVar(&opts.backend, "backend", "", "browser backend: chromedp, rod, http")
	f.BoolVar(&opts.concurrent, "concurrent", false, "fetch pages concurrently")
	f.BoolVar(&opts.noConsent, "no-consent", false, "do not click cookie consent banners")
	f.BoolVar(&opts.showBrowser, "show-browser", false, "run the browser with a visible window")
	f.BoolVar(&opts.noFingerprinting, "no-fingerprinting", false, "skip fingerprinting detection")
	f.BoolVar(&opts.ignoreRobots, "ignore-robots", false, "crawl pages robots.txt disallows")
	f.StringVar(&opts.rules, "rules", "", "YAML heuristic rule file")
	return cmd
}

// apply overlays command-line flags on the loaded configuration.
func (o *analyzeOptions) apply(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	f := cmd.Flags()
	if f.Changed("pages") {
		if o.pages <= 0 {
			return cfg, fmt.Errorf("--pages must be > 0")
		}
		cfg.Crawler.MaxPages = o.pages
	}
	if f.Changed("database") {
		cfg.Reference.Source = config.ReferenceCSV
		cfg.Reference.Path = o.database
	}
	if f.Changed("format") {
		cfg.Output.Format = o.format
	}
	if f.Changed("backend") {
		cfg.Crawler.Backend = o.backend
	}
	if o.concurrent {
		cfg.Crawler.UseConcurrency = true
	}
	if o.noConsent {
		cfg.Crawler.ConsentInteraction = false
	}
	if o.showBrowser {
		cfg.Crawler.Headless = false
	}
	if o.noFingerprinting {
		cfg.Crawler.DetectFingerprinting = false
	}
	if o.ignoreRobots {
		cfg.Crawler.RespectRobots = false
	}
	if f.Changed("rules") {
		cfg.Rules.Path = o.rules
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runAnalyze(cmd *cobra.Command, seed string, opts *analyzeOptions) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg, err := opts.apply(cmd, rt.cfg)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	logger := rt.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer func() { _ = services.Close() }()

	logger.Info("analysis started", zap.String("seed", seed), zap.Int("max_pages", cfg.Crawler.MaxPages))
	res, err := services.Analyzer().CrawlAndClassify(ctx, seed, cfg.Crawler.MaxPages, services.Table(), services.Options())
	if err != nil {
		return fmt.Errorf("analyze %s: %w", seed, err)
	}
	logger.Info("analysis finished",
		zap.String("run_id", res.RunID),
		zap.Int("pages", len(res.Pages)),
		zap.Int("cookies", res.Summary.Total),
		zap.Int("warnings", len(res.Warnings)),
	)

	body, err := report.Render(format, res)
	if err != nil {
		return err
	}
	if err := writeReport(cmd, opts.output, body); err != nil {
		return err
	}

	uri := uploadReport(ctx, cfg, format, res, body, logger)
	record := jobs.NewReportRecord("", res, uri)
	for _, store := range services.Reports() {
		if err := store.SaveReport(ctx, record); err != nil {
			logger.Warn("save report summary failed", zap.Error(err))
		}
	}
	return nil
}

func writeReport(cmd *cobra.Command, path string, body []byte) error {
	if path == "" {
		if _, err := cmd.OutOrStdout().Write(body); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", path)
	return nil
}

// uploadReport copies the rendered report to the configured blob stores and
// returns the last URI written. Upload failures are logged, not returned.
func uploadReport(
	ctx context.Context,
	cfg config.Config,
	format report.Format,
	res analyzer.Result,
	body []byte,
	logger *zap.Logger,
) string {
	key := report.ObjectKey(cfg.Output.Prefix, res, format)
	var uri string
	if cfg.Output.LocalDir != "" {
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Output.LocalDir})
		if err != nil {
			logger.Warn("local report storage unavailable", zap.Error(err))
		} else if uri, err = store.PutObject(ctx, key, format.ContentType(), bytes.NewReader(body)); err != nil {
			logger.Warn("local report write failed", zap.Error(err))
		}
	}
	if cfg.Output.GCSBucket != "" {
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.Output.GCSBucket})
		if err != nil {
			logger.Warn("gcs report storage unavailable", zap.Error(err))
			return uri
		}
		defer func() { _ = store.Close() }()
		gcsURI, err := store.PutObject(ctx, key, format.ContentType(), bytes.NewReader(body))
		if err != nil {
			logger.Warn("gcs report upload failed", zap.Error(err))
			return uri
		}
		uri = gcsURI
	}
	if uri != "" {
		logger.Info("report stored", zap.String("uri", uri))
	}
	return uri
}
