package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/invision-ai/invision/internal/analysis"
	"github.com/invision-ai/invision/internal/bus"
	"github.com/invision-ai/invision/internal/logging"
)

const DefaultPollInterval = 5 * time.Second

// Annotator produces the text description of a camera's video.
type Annotator interface {
	Annotate(ctx context.Context, cameraID, videoPath string) (string, error)
}

// Analyzer checks an annotation against the camera's rules.
type Analyzer interface {
	Analyze(ctx context.Context, annotation, cameraID, userID string) (*analysis.Result, error)
}

// Runner polls for pending jobs and processes them one at a time.
type Runner struct {
	repo         Repository
	annotator    Annotator
	analyzer     Analyzer
	publisher    bus.Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(repo Repository, annotator Annotator, analyzer Analyzer, publisher bus.Publisher, pollInterval time.Duration, logger *slog.Logger) *Runner {
	if publisher == nil {
		publisher = bus.NopPublisher{}
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Runner{
		repo:         repo,
		annotator:    annotator,
		analyzer:     analyzer,
		publisher:    publisher,
		logger:       logging.WithComponent(logging.OrDiscard(logger), "runner"),
		pollInterval: pollInterval,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started", "poll_interval", r.pollInterval.String())

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// processNextJob runs the oldest pending job, if any. It reports whether a
// job was picked up.
func (r *Runner) processNextJob(ctx context.Context) bool {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return false
	}
	if len(jobs) == 0 {
		return false
	}

	r.processJob(ctx, jobs[0])
	return true
}

func (r *Runner) processJob(ctx context.Context, job *Job) {
	logger := logging.WithJobID(logging.WithCameraID(r.logger, job.CameraID), job.ID)
	logger.Info("processing job", "user_id", job.UserID)

	fail := func(stage string, err error) {
		logger.Error(stage+" failed", "error", err)
		if uerr := r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, stage+": "+err.Error()); uerr != nil {
			logger.Error("failed to mark job failed", "error", uerr)
		}
	}

	if err := r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, ""); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}

	annotation, err := r.annotator.Annotate(ctx, job.CameraID, job.VideoPath)
	if err != nil {
		fail("annotate", err)
		return
	}
	if err := r.repo.SetJobAnnotation(ctx, job.ID, annotation); err != nil {
		fail("store annotation", err)
		return
	}
	r.repo.UpdateJobProgress(ctx, job.ID, 50)

	result, err := r.analyzer.Analyze(ctx, annotation, job.CameraID, job.UserID)
	if err != nil {
		fail("analyze", err)
		return
	}

	reports := make([]*Report, len(result.Reports))
	for i, br := range result.Reports {
		reports[i] = &Report{
			ID:          NewID(),
			JobID:       job.ID,
			RuleID:      br.RuleID,
			Description: br.Description,
			DetectedAt:  br.Timestamp,
		}
	}

	var diagnostic string
	if result.Diagnostic != nil {
		diagnostic = result.Diagnostic.Error() + "\n" + result.Diagnostic.Raw
	}

	if err := r.repo.CompleteJob(ctx, job.ID, result.Room, diagnostic, reports); err != nil {
		fail("store reports", err)
		return
	}

	for _, rep := range reports {
		evt := bus.BreachEvent{
			JobID:       job.ID,
			CameraID:    job.CameraID,
			UserID:      job.UserID,
			Room:        result.Room,
			RuleID:      rep.RuleID,
			Description: rep.Description,
			DetectedAt:  rep.DetectedAt,
		}
		if err := r.publisher.Publish(ctx, evt); err != nil {
			logger.Warn("failed to publish breach", "rule_id", rep.RuleID, "error", err)
		}
	}

	logger.Info("job completed", "breaches", len(reports), "diagnostic", diagnostic != "")
}
