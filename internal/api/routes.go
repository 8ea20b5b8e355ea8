package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/invision-ai/invision/internal/analysis"
	"github.com/invision-ai/invision/internal/jobs"
	"github.com/invision-ai/invision/internal/metadata"
)

// JobService queues and reads analysis jobs.
type JobService interface {
	Submit(ctx context.Context, cameraID, userID, videoPath string) (*jobs.Job, error)
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*jobs.Job, error)
	GetReports(ctx context.Context, jobID string) ([]*jobs.Report, error)
	ActiveJobCount(ctx context.Context) int
}

// TextAnalyzer analyzes an already produced annotation.
type TextAnalyzer interface {
	Analyze(ctx context.Context, annotation, cameraID, userID string) (*analysis.Result, error)
}

type RunnerControl interface {
	Pause()
	Resume()
	IsPaused() bool
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/cameras/{id}/rules", rulesHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/jobs/{id}/reports", jobReportsHandler(cfg))
		r.Get("/jobs/{id}/video", clipHandler(cfg))
		r.Get("/runner", runnerStatusHandler(cfg))
		r.Post("/runner/pause", pauseRunnerHandler(cfg))
		r.Post("/runner/resume", resumeRunnerHandler(cfg))

		r.Group(func(r chi.Router) {
			if cfg.RateLimit > 0 {
				r.Use(RateLimitMiddleware(cfg.RateLimit))
			}
			r.Post("/analyses", submitAnalysisHandler(cfg))
			r.Post("/analyses/text", textAnalysisHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

// writeLookupError maps metadata and job errors to HTTP statuses.
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "CAMERA_NOT_FOUND")
	case errors.Is(err, jobs.ErrInvalidJob):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func rulesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cameraID := chi.URLParam(r, "id")
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			WriteError(w, http.StatusBadRequest, "user_id is required", "BAD_REQUEST")
			return
		}

		set, err := cfg.Rules.ApplicableRules(r.Context(), cameraID, userID)
		if err != nil {
			writeLookupError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, RuleSetToResponse(cameraID, set))
	}
}

func submitAnalysisHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitAnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		job, err := cfg.Jobs.Submit(r.Context(), req.CameraID, req.UserID, req.VideoPath)
		if err != nil {
			writeLookupError(w, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, SubmitAnalysisResponse{JobID: job.ID})
	}
}

func textAnalysisHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TextAnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.CameraID == "" || req.UserID == "" {
			WriteError(w, http.StatusBadRequest, "camera_id and user_id are required", "BAD_REQUEST")
			return
		}

		res, err := cfg.Analyzer.Analyze(r.Context(), req.Annotation, req.CameraID, req.UserID)
		if err != nil {
			if errors.Is(err, metadata.ErrNotFound) {
				writeLookupError(w, err)
				return
			}
			cfg.Logger.Error("text analysis failed", "camera_id", req.CameraID, "error", err)
			WriteError(w, http.StatusBadGateway, err.Error(), "UPSTREAM_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, ResultToResponse(res))
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		list, err := cfg.Jobs.ListJobs(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := cfg.Jobs.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func jobReportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := cfg.Jobs.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		reports, err := cfg.Jobs.GetReports(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := JobReportsResponse{JobID: id, Reports: make([]ReportResponse, len(reports))}
		for i, rep := range reports {
			resp.Reports[i] = ReportToResponse(rep)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func runnerStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, RunnerResponse{
			Paused:      cfg.Runner.IsPaused(),
			JobsRunning: cfg.Jobs.ActiveJobCount(r.Context()),
		})
	}
}

func pauseRunnerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Runner.Pause()
		WriteJSON(w, http.StatusOK, RunnerResponse{Paused: true, JobsRunning: cfg.Jobs.ActiveJobCount(r.Context())})
	}
}

func resumeRunnerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Runner.Resume()
		WriteJSON(w, http.StatusOK, RunnerResponse{Paused: false, JobsRunning: cfg.Jobs.ActiveJobCount(r.Context())})
	}
}
