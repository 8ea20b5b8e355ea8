package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invision-ai/invision/internal/logging"
	"github.com/invision-ai/invision/internal/metadata"
	"github.com/invision-ai/invision/internal/video"
)

// ErrInvalidJob is returned by Submit for a request missing a required field
// or naming something other than a readable video.
var ErrInvalidJob = errors.New("invalid job")

type Service struct {
	repo      Repository
	store     metadata.Store
	logger    *slog.Logger
	mediaRoot string
}

func NewService(repo Repository, store metadata.Store, logger *slog.Logger) *Service {
	return &Service{repo: repo, store: store, logger: logging.WithComponent(logging.OrDiscard(logger), "jobs")}
}

// SetMediaRoot confines local video paths to root. An empty root allows any
// regular video file.
func (s *Service) SetMediaRoot(root string) {
	s.mediaRoot = root
}

// checkVideoPath returns the path to store for a submitted video. Local
// paths are resolved to the real file; gs:// objects are checked by
// extension only.
func (s *Service) checkVideoPath(videoPath string) (string, error) {
	if video.IsGCSPath(videoPath) {
		if !video.HasVideoExt(videoPath) {
			return "", fmt.Errorf("%w: %w: %s", ErrInvalidJob, video.ErrNotVideo, videoPath)
		}
		return videoPath, nil
	}
	resolved, err := video.ResolveLocal(videoPath, s.mediaRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	return resolved, nil
}

// Submit validates the camera and queues a pending job for videoPath.
func (s *Service) Submit(ctx context.Context, cameraID, userID, videoPath string) (*Job, error) {
	cameraID = strings.TrimSpace(cameraID)
	userID = strings.TrimSpace(userID)
	videoPath = strings.TrimSpace(videoPath)

	switch {
	case cameraID == "":
		return nil, fmt.Errorf("%w: camera_id is required", ErrInvalidJob)
	case userID == "":
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidJob)
	case videoPath == "":
		return nil, fmt.Errorf("%w: video_path is required", ErrInvalidJob)
	}

	room, err := s.store.RoomName(ctx, cameraID)
	if err != nil {
		return nil, err
	}

	videoPath, err = s.checkVideoPath(videoPath)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Status:    JobStatusPending,
		CameraID:  cameraID,
		UserID:    userID,
		Room:      room,
		VideoPath: videoPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	logging.WithJobID(logging.WithCameraID(s.logger, cameraID), job.ID).
		Info("analysis job created", "room", room, "path", logging.SanitizePath(videoPath))
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

func (s *Service) GetReports(ctx context.Context, jobID string) ([]*Report, error) {
	return s.repo.ListReports(ctx, jobID)
}

// ActiveJobCount returns the number of running jobs among the most recent
// hundred.
func (s *Service) ActiveJobCount(ctx context.Context) int {
	jobs, err := s.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == JobStatusRunning {
			count++
		}
	}
	return count
}
