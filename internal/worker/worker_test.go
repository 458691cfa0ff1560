package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
	"github.com/JakeFAU/cookie-crawler/internal/crawler"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
	memorypublisher "github.com/JakeFAU/cookie-crawler/internal/publisher/memory"
	memoryqueue "github.com/JakeFAU/cookie-crawler/internal/queue/memory"
	"github.com/JakeFAU/cookie-crawler/internal/report"
	memorystorage "github.com/JakeFAU/cookie-crawler/internal/storage/memory"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) CrawlAndClassify(
	ctx context.Context,
	seed string,
	budget int,
	table *classify.ReferenceTable,
	opts analyzer.Options,
) (analyzer.Result, error) {
	args := m.Called(ctx, seed, budget, table, opts)
	return args.Get(0).(analyzer.Result), args.Error(1)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingReports struct {
	mu      sync.Mutex
	records []jobs.ReportRecord
}

func (r *recordingReports) SaveReport(_ context.Context, rec jobs.ReportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingReports) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type harness struct {
	queue     *memoryqueue.Queue
	store     *memorystorage.JobStore
	blobs     *memorystorage.BlobStore
	publisher *memorypublisher.Publisher
	reports   *recordingReports
	runner    *mockRunner
	cancels   *Cancels
	worker    *Worker
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		queue:     memoryqueue.NewQueue(4),
		store:     memorystorage.NewJobStore(),
		blobs:     memorystorage.NewBlobStore(),
		publisher: memorypublisher.New(),
		reports:   &recordingReports{},
		runner:    &mockRunner{},
		cancels:   NewCancels(),
	}
	h.worker = New(
		h.queue,
		h.store,
		h.runner,
		nil,
		h.blobs,
		[]jobs.ReportStore{h.reports},
		h.publisher,
		h.cancels,
		fixedClock{now: time.Unix(1700000000, 0).UTC()},
		cfg,
		zap.NewNop(),
	)
	return h
}

func (h *harness) submit(t *testing.T, id string, params jobs.Parameters) {
	t.Helper()
	require.NoError(t, h.store.CreateJob(context.Background(), jobs.Job{ID: id, Status: jobs.StatusQueued, Parameters: params}))
	require.NoError(t, h.queue.Enqueue(context.Background(), jobs.Item{JobID: id, Params: params}))
}

func (h *harness) status(id string) jobs.Status {
	job, err := h.store.GetJob(context.Background(), id)
	if err != nil {
		return ""
	}
	return job.Status
}

func sampleResult() analyzer.Result {
	classified := classify.Classification{
		cookie.CategoryPerformance: {{
			RawCookie: cookie.RawCookie{Name: "_ga", Domain: "example.com"},
			Category:  cookie.CategoryPerformance,
			Method:    cookie.MethodRuleBased,
		}},
	}
	return analyzer.Result{
		RunID:      "run-1",
		SeedURL:    "https://example.com/",
		Classified: classified,
		Pages:      []string{"https://example.com/"},
		Warnings:   []string{},
		Summary:    analyzer.Summarize(classified, time.Now()),
	}
}

func TestWorkerSuccessFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{
		Defaults:   analyzer.Options{RespectRobots: true, DetectFingerprinting: true},
		MaxPages:   7,
		BlobPrefix: "reports",
		Topic:      "analyses",
	})
	h.runner.On("CrawlAndClassify", mock.Anything, "example.com", 7, mock.Anything,
		analyzer.Options{RespectRobots: true, DetectFingerprinting: true}).
		Return(sampleResult(), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.submit(t, "job-1", jobs.Parameters{URL: "example.com"})
	go h.worker.Run(ctx)

	require.Eventually(t, func() bool { return h.status("job-1") == jobs.StatusSucceeded }, time.Second, 10*time.Millisecond)

	job, err := h.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.Counters{Pages: 1, Cookies: 1}, job.Counters)
	assert.Equal(t, "memory://reports/run-1.json", job.ReportURI)

	body, ok := h.blobs.Object("reports/run-1.json")
	require.True(t, ok)
	assert.Contains(t, string(body), `"runId": "run-1"`)

	res, err := h.store.GetResult(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)

	assert.Equal(t, 1, h.reports.count())
	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "analyses", events[0].Topic)
	var event map[string]any
	require.NoError(t, events[0].Decode(&event))
	assert.Equal(t, "run-1", event["run_id"])
	h.runner.AssertExpectations(t)
}

func TestWorkerAppliesJobParameters(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Defaults: analyzer.Options{RespectRobots: true, RunConsentInteraction: true}})
	off := false
	on := true
	want := analyzer.Options{
		RespectRobots:         false,
		UseConcurrency:        true,
		ConcurrencyLimit:      3,
		RunConsentInteraction: true,
	}
	h.runner.On("CrawlAndClassify", mock.Anything, "https://example.org", 2, mock.Anything, want).
		Return(sampleResult(), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.submit(t, "job-2", jobs.Parameters{
		URL:            "https://example.org",
		MaxPages:       2,
		RespectRobots:  &off,
		UseConcurrency: &on,
		Concurrency:    3,
		Format:         "markdown",
	})
	go h.worker.Run(ctx)

	require.Eventually(t, func() bool { return h.status("job-2") == jobs.StatusSucceeded }, time.Second, 10*time.Millisecond)
	_, ok := h.blobs.Object(report.ObjectKey("", sampleResult(), report.FormatMarkdown))
	assert.True(t, ok)
	h.runner.AssertExpectations(t)
}

func TestWorkerAnalysisFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.runner.On("CrawlAndClassify", mock.Anything, "https://down.example", 5, mock.Anything, mock.Anything).
		Return(analyzer.Result{RunID: "run-x"}, errors.Join(crawler.ErrSeedFetch, errors.New("connection refused"))).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.submit(t, "job-3", jobs.Parameters{URL: "https://down.example"})
	go h.worker.Run(ctx)

	require.Eventually(t, func() bool { return h.status("job-3") == jobs.StatusFailed }, time.Second, 10*time.Millisecond)
	job, err := h.store.GetJob(ctx, "job-3")
	require.NoError(t, err)
	assert.Contains(t, job.ErrorText, "connection refused")
	assert.Empty(t, h.publisher.Events())
	assert.Zero(t, h.reports.count())
}

func TestWorkerSkipsCanceledJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.submit(t, "job-4", jobs.Parameters{URL: "example.com"})
	require.NoError(t, h.store.UpdateJobStatus(ctx, "job-4", jobs.StatusCanceled, "canceled", jobs.Counters{}))
	h.queue.Close()

	done := make(chan struct{})
	go func() {
		h.worker.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on closed queue")
	}
	h.runner.AssertNotCalled(t, "CrawlAndClassify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, jobs.StatusCanceled, h.status("job-4"))
}

func TestWorkerCancelRunningJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	started := make(chan struct{})
	h.runner.On("CrawlAndClassify", mock.Anything, "example.com", 5, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(sampleResult(), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.submit(t, "job-5", jobs.Parameters{URL: "example.com"})
	go h.worker.Run(ctx)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("analysis did not start")
	}
	require.True(t, h.cancels.Cancel("job-5"))
	require.Eventually(t, func() bool { return h.status("job-5") == jobs.StatusCanceled }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !h.cancels.Cancel("job-5") }, time.Second, 10*time.Millisecond)
}
