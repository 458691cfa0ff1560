package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/config"
	"github.com/JakeFAU/cookie-crawler/internal/dispatcher"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
	"github.com/JakeFAU/cookie-crawler/internal/metrics"
	"github.com/JakeFAU/cookie-crawler/internal/report"
)

const maxRequestBytes = 64 << 10

// IDGenerator creates job identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Server wires HTTP handlers to the dispatcher and job store.
type Server struct {
	router     chi.Router
	jobStore   jobs.Store
	dispatcher *dispatcher.Dispatcher
	idGen      IDGenerator
	clock      Clock
	validate   *validator.Validate
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore jobs.Store,
	dispatch *dispatcher.Dispatcher,
	idGen IDGenerator,
	clock Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:   jobStore,
		dispatcher: dispatch,
		idGen:      idGen,
		clock:      clock,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		cfg:        cfg,
		logger:     logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1/analyses", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(timeoutMiddleware(30 * time.Second))
		r.Post("/", s.submitAnalysis)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/", s.getAnalysis)
			r.Get("/result", s.getAnalysisResult)
			r.Post("/cancel", s.cancelAnalysis)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var params jobs.Parameters
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&params); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params.URL = strings.TrimSpace(params.URL)
	if err := s.validate.Struct(params); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if params.MaxPages == 0 {
		params.MaxPages = s.cfg.Crawler.MaxPages
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to generate job id")
		return
	}
	job := jobs.Job{
		ID:         jobID,
		Submitted:  s.clock.Now(),
		Parameters: params,
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Submit(ctx, job); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		case errors.Is(err, jobs.ErrQueueClosed):
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("submit analysis failed", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, status, "failed to queue analysis")
		return
	}
	s.logger.Info("analysis queued", zap.String("job_id", jobID), zap.String("url", params.URL))
	w.Header().Set("Location", "/v1/analyses/"+jobID)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": string(jobs.StatusQueued)})
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// getAnalysisResult returns the stored result as JSON, or rendered when a
// format query parameter is given.
func (s *Server) getAnalysisResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusSucceeded {
		s.writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "result not available",
			"status": string(job.Status),
		})
		return
	}
	res, err := s.jobStore.GetResult(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	raw := r.URL.Query().Get("format")
	if raw == "" || raw == "json" {
		s.writeJSON(w, http.StatusOK, res)
		return
	}
	format, err := report.ParseFormat(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := report.Render(format, res)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to render result")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("write result failed", zap.Error(err))
	}
}

func (s *Server) cancelAnalysis(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.dispatcher.Cancel(r.Context(), jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, dispatcher.ErrJobFinished):
		s.writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "job already finished",
			"status": string(job.Status),
		})
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(job.Status)})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (jobs.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
		} else {
			s.writeError(w, http.StatusInternalServerError, "failed to load job")
		}
		return jobs.Job{}, false
	}
	return job, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonFieldName(fe.StructField())
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func jsonFieldName(structField string) string {
	switch structField {
	case "URL":
		return "url"
	case "MaxPages":
		return "max_pages"
	case "Concurrency":
		return "concurrency"
	case "Format":
		return "format"
	default:
		return strings.ToLower(structField)
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
