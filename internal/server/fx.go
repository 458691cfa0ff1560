// Package server assembles the asynchronous analysis service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/api"
	"github.com/JakeFAU/cookie-crawler/internal/app"
	"github.com/JakeFAU/cookie-crawler/internal/clock/system"
	"github.com/JakeFAU/cookie-crawler/internal/config"
	"github.com/JakeFAU/cookie-crawler/internal/dispatcher"
	"github.com/JakeFAU/cookie-crawler/internal/id/uuid"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
	"github.com/JakeFAU/cookie-crawler/internal/metrics"
	memorypublisher "github.com/JakeFAU/cookie-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/cookie-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/cookie-crawler/internal/queue/memory"
	"github.com/JakeFAU/cookie-crawler/internal/report"
	gcsstorage "github.com/JakeFAU/cookie-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/cookie-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/cookie-crawler/internal/storage/memory"
	"github.com/JakeFAU/cookie-crawler/internal/worker"
)

// App contains the service's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	services  *app.App
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     *queueMemory.Queue
	closers   []func() error
}

// Handler exposes the API router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Build creates the service's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building service dependencies", zap.Int("server_port", cfg.Server.Port))

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.services = services
	a.closers = append(a.closers, services.Close)

	blobStore, err := setupStorage(ctx, a)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	publisher, err := setupPublisher(ctx, a)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	jobStore := memoryStorage.NewJobStore()
	a.queue = queueMemory.NewQueue(cfg.Jobs.QueueDepth)
	a.dispatch, err = setupDispatcher(a, jobStore, blobStore, publisher)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.apiServer = api.NewServer(jobStore, a.dispatch, uuid.New(), system.New(), cfg, logger)
	return a, nil
}

// Run starts the dispatcher and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Jobs.Workers))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before shutdown deadline")
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases infrastructure in reverse order of creation.
func (a *App) Close(_ context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func setupStorage(ctx context.Context, a *App) (jobs.BlobStore, error) {
	switch {
	case a.cfg.Output.GCSBucket != "":
		a.logger.Info("using GCS report storage", zap.String("bucket", a.cfg.Output.GCSBucket))
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Output.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case a.cfg.Output.LocalDir != "":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Output.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local report storage", zap.String("path", store.BaseDir()))
		return store, nil
	default:
		a.logger.Info("using in-memory report storage")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, a *App) (jobs.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.closers = append(a.closers, publisher.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return publisher, nil
}

func setupDispatcher(
	a *App,
	jobStore jobs.Store,
	blobStore jobs.BlobStore,
	publisher jobs.Publisher,
) (*dispatcher.Dispatcher, error) {
	format, err := report.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return nil, fmt.Errorf("output format: %w", err)
	}
	workerCfg := worker.Config{
		Defaults:   a.services.Options(),
		MaxPages:   a.cfg.Crawler.MaxPages,
		Format:     format,
		BlobPrefix: a.cfg.Output.Prefix,
		Topic:      a.cfg.PubSub.TopicName,
		JobTimeout: a.cfg.JobTimeout(),
	}
	a.logger.Info("worker config",
		zap.String("format", string(workerCfg.Format)),
		zap.String("blob_prefix", workerCfg.BlobPrefix),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)

	cancels := worker.NewCancels()
	clock := system.New()
	workers := make([]*worker.Worker, 0, a.cfg.Jobs.Workers)
	for i := 0; i < a.cfg.Jobs.Workers; i++ {
		workers = append(workers, worker.New(
			a.queue,
			jobStore,
			a.services.Analyzer(),
			a.services.Table(),
			blobStore,
			a.services.Reports(),
			publisher,
			cancels,
			clock,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(a.queue, jobStore, workers, cancels), nil
}
