// Package worker runs queued analyses and delivers their reports.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
	"github.com/JakeFAU/cookie-crawler/internal/metrics"
	"github.com/JakeFAU/cookie-crawler/internal/report"
)

// Runner performs one analysis. *analyzer.Analyzer satisfies it.
type Runner interface {
	CrawlAndClassify(
		ctx context.Context,
		seed string,
		budget int,
		table *classify.ReferenceTable,
		opts analyzer.Options,
	) (analyzer.Result, error)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Config controls Worker behavior.
type Config struct {
	// Defaults fill in parameters the client left unset.
	Defaults   analyzer.Options
	MaxPages   int
	Format     report.Format
	BlobPrefix string
	Topic      string
	// JobTimeout bounds a whole analysis; zero means no limit.
	JobTimeout time.Duration
}

// Worker consumes queue items and executes analyses.
type Worker struct {
	queue     jobs.Queue
	store     jobs.Store
	runner    Runner
	table     *classify.ReferenceTable
	blobs     jobs.BlobStore
	reports   []jobs.ReportStore
	publisher jobs.Publisher
	cancels   *Cancels
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. blobs, reports, publisher, and cancels may be nil.
func New(
	queue jobs.Queue,
	store jobs.Store,
	runner Runner,
	table *classify.ReferenceTable,
	blobs jobs.BlobStore,
	reports []jobs.ReportStore,
	publisher jobs.Publisher,
	cancels *Cancels,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Format == "" {
		cfg.Format = report.FormatJSON
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	return &Worker{
		queue:     queue,
		store:     store,
		runner:    runner,
		table:     table,
		blobs:     blobs,
		reports:   reports,
		publisher: publisher,
		cancels:   cancels,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, jobs.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(parent context.Context, item jobs.Item) {
	logger := w.logger.With(zap.String("job_id", item.JobID))

	job, err := w.store.GetJob(parent, item.JobID)
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		logger.Info("skipping finished job", zap.String("status", string(job.Status)))
		return
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if w.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, w.cfg.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()
	w.cancels.register(item.JobID, cancel)
	defer w.cancels.done(item.JobID)

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if err := w.store.UpdateJobStatus(ctx, item.JobID, jobs.StatusRunning, "", jobs.Counters{}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	budget := item.Params.MaxPages
	if budget <= 0 {
		budget = w.cfg.MaxPages
	}
	res, err := w.runner.CrawlAndClassify(ctx, item.Params.URL, budget, w.table, w.options(item.Params))
	if err != nil {
		status := jobs.StatusFailed
		if ctx.Err() != nil {
			status = jobs.StatusCanceled
		}
		logger.Warn("analysis failed", zap.Error(err))
		w.finish(parent, logger, item.JobID, status, err.Error(), jobs.Counters{})
		return
	}

	counters := jobs.Counters{Pages: len(res.Pages), Cookies: res.Summary.Total, Warnings: len(res.Warnings)}
	uri := w.storeReport(parent, logger, item, res)
	if err := w.store.SaveResult(parent, item.JobID, res, uri); err != nil {
		logger.Error("save result failed", zap.Error(err))
		w.finish(parent, logger, item.JobID, jobs.StatusFailed, err.Error(), counters)
		return
	}

	record := jobs.NewReportRecord(item.JobID, res, uri)
	for _, rs := range w.reports {
		if err := rs.SaveReport(parent, record); err != nil {
			logger.Warn("save report summary failed", zap.Error(err))
		}
	}
	if err := w.publish(parent, item.JobID, res, uri); err != nil {
		logger.Warn("publish failed", zap.Error(err))
	}

	status := jobs.StatusSucceeded
	errText := ""
	if ctx.Err() != nil {
		status = jobs.StatusCanceled
		errText = ctx.Err().Error()
	}
	w.finish(parent, logger, item.JobID, status, errText, counters)
}

func (w *Worker) finish(
	ctx context.Context,
	logger *zap.Logger,
	jobID string,
	status jobs.Status,
	errText string,
	counters jobs.Counters,
) {
	if err := w.store.UpdateJobStatus(context.WithoutCancel(ctx), jobID, status, errText, counters); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
		return
	}
	logger.Info("job finished",
		zap.String("status", string(status)),
		zap.Int("pages", counters.Pages),
		zap.Int("cookies", counters.Cookies),
	)
}

func (w *Worker) options(p jobs.Parameters) analyzer.Options {
	opts := w.cfg.Defaults
	if p.RespectRobots != nil {
		opts.RespectRobots = *p.RespectRobots
	}
	if p.UseConcurrency != nil {
		opts.UseConcurrency = *p.UseConcurrency
	}
	if p.Concurrency > 0 {
		opts.ConcurrencyLimit = p.Concurrency
	}
	if p.DetectFingerprinting != nil {
		opts.DetectFingerprinting = *p.DetectFingerprinting
	}
	if p.ConsentInteraction != nil {
		opts.RunConsentInteraction = *p.ConsentInteraction
	}
	return opts
}

func (w *Worker) storeReport(ctx context.Context, logger *zap.Logger, item jobs.Item, res analyzer.Result) string {
	if w.blobs == nil {
		return ""
	}
	format := w.cfg.Format
	if item.Params.Format != "" {
		if f, err := report.ParseFormat(item.Params.Format); err == nil {
			format = f
		}
	}
	data, err := report.Render(format, res)
	if err != nil {
		logger.Warn("render report failed", zap.Error(err))
		return ""
	}
	uri, err := w.blobs.PutObject(ctx, report.ObjectKey(w.cfg.BlobPrefix, res, format), format.ContentType(), bytes.NewReader(data))
	if err != nil {
		logger.Warn("store report failed", zap.Error(err))
		return ""
	}
	return uri
}

func (w *Worker) publish(ctx context.Context, jobID string, res analyzer.Result, uri string) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	now := time.Now().UTC()
	if w.clock != nil {
		now = w.clock.Now()
	}
	payload := map[string]any{
		"job_id":     jobID,
		"run_id":     res.RunID,
		"seed_url":   res.SeedURL,
		"report_uri": uri,
		"pages":      len(res.Pages),
		"cookies":    res.Summary.Total,
		"categories": res.Summary.ByCategory,
		"timestamp":  now.Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}
