// Package jobs defines asynchronous analysis jobs and the persistence,
// queue, and event interfaces the API and workers share.
package jobs

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
)

// ErrJobNotFound is returned by stores for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// ErrJobExists is returned when a job ID is reused.
var ErrJobExists = errors.New("job already exists")

// ErrQueueClosed is returned by queues that have been shut down.
var ErrQueueClosed = errors.New("queue closed")

// Status represents the lifecycle state of an analysis job.
type Status string

// Job status values.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Parameters are the per-job knobs a client may send. Pointer fields
// distinguish "not provided" from false so server defaults apply.
type Parameters struct {
	URL                  string `json:"url" validate:"required"`
	MaxPages             int    `json:"max_pages" validate:"gte=0,lte=500"`
	RespectRobots        *bool  `json:"respect_robots,omitempty"`
	UseConcurrency       *bool  `json:"use_concurrency,omitempty"`
	Concurrency          int    `json:"concurrency" validate:"gte=0,lte=32"`
	DetectFingerprinting *bool  `json:"detect_fingerprinting,omitempty"`
	ConsentInteraction   *bool  `json:"consent_interaction,omitempty"`
	Format               string `json:"format,omitempty" validate:"omitempty,oneof=text json markdown md"`
}

// Counters summarizes a finished job.
type Counters struct {
	Pages    int `json:"pages"`
	Cookies  int `json:"cookies"`
	Warnings int `json:"warnings"`
}

// Job is the metadata persisted for each submitted analysis.
type Job struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Submitted  time.Time  `json:"submitted_at"`
	Started    *time.Time `json:"started_at,omitempty"`
	Finished   *time.Time `json:"finished_at,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
	Parameters Parameters `json:"parameters"`
	Counters   Counters   `json:"counters"`
	ReportURI  string     `json:"report_uri,omitempty"`
}

// Item is a queued unit of work.
type Item struct {
	JobID  string
	Params Parameters
}

// Store persists jobs and their results.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status Status, errText string, counters Counters) error
	SaveResult(ctx context.Context, jobID string, result analyzer.Result, reportURI string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	GetResult(ctx context.Context, jobID string) (analyzer.Result, error)
}

// Queue moves items from the API to workers.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	Dequeue(ctx context.Context) (Item, error)
}

// BlobStore writes rendered reports and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ReportRecord is the summary row written after each analysis.
type ReportRecord struct {
	RunID          string
	JobID          string
	SeedURL        string
	StartedAt      time.Time
	FinishedAt     time.Time
	Pages          int
	Cookies        int
	ByCategory     map[string]int
	Fingerprinting []string
	Warnings       int
	ReportURI      string
}

// ReportStore persists report summary rows.
type ReportStore interface {
	SaveReport(ctx context.Context, record ReportRecord) error
}

// NewReportRecord flattens a result into a ReportRecord.
func NewReportRecord(jobID string, res analyzer.Result, reportURI string) ReportRecord {
	byCategory := make(map[string]int, len(res.Summary.ByCategory))
	for category, n := range res.Summary.ByCategory {
		byCategory[string(category)] = n
	}
	var techniques []string
	for technique, found := range res.Fingerprinting {
		if found {
			techniques = append(techniques, string(technique))
		}
	}
	return ReportRecord{
		RunID:          res.RunID,
		JobID:          jobID,
		SeedURL:        res.SeedURL,
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
		Pages:          len(res.Pages),
		Cookies:        res.Summary.Total,
		ByCategory:     byCategory,
		Fingerprinting: techniques,
		Warnings:       len(res.Warnings),
		ReportURI:      reportURI,
	}
}
