package jobs

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one queued annotate-then-analyze run over a single video.
type Job struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	CameraID   string    `json:"camera_id"`
	UserID     string    `json:"user_id"`
	Room       string    `json:"room,omitempty"`
	VideoPath  string    `json:"video_path"`
	Annotation string    `json:"annotation,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Report is a stored breach report belonging to a job.
type Report struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	RuleID      string    `json:"rule_id"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

func NewID() string {
	return uuid.NewString()
}

// timeFormat sorts lexically and matches the strftime format used by package
// db.
const timeFormat = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
