package api

import (
	"time"

	"github.com/invision-ai/invision/internal/analysis"
	"github.com/invision-ai/invision/internal/jobs"
	"github.com/invision-ai/invision/internal/metadata"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type RunnerResponse struct {
	Paused      bool `json:"paused"`
	JobsRunning int  `json:"jobs_running"`
}

type RuleResponse struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Shared bool     `json:"shared"`
	Rooms  []string `json:"rooms,omitempty"`
}

type RulesResponse struct {
	CameraID string         `json:"camera_id"`
	Room     string         `json:"room"`
	Rules    []RuleResponse `json:"rules"`
	Rendered string         `json:"rendered"`
}

type SubmitAnalysisRequest struct {
	CameraID  string `json:"camera_id"`
	UserID    string `json:"user_id"`
	VideoPath string `json:"video_path"`
}

type SubmitAnalysisResponse struct {
	JobID string `json:"job_id"`
}

type TextAnalysisRequest struct {
	CameraID   string `json:"camera_id"`
	UserID     string `json:"user_id"`
	Annotation string `json:"annotation"`
}

type ReportResponse struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

type TextAnalysisResponse struct {
	Room       string           `json:"room"`
	Reasoning  string           `json:"reasoning"`
	Reports    []ReportResponse `json:"reports"`
	Diagnostic string           `json:"diagnostic,omitempty"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CameraID   string `json:"camera_id"`
	UserID     string `json:"user_id"`
	Room       string `json:"room,omitempty"`
	VideoPath  string `json:"video_path"`
	Annotation string `json:"annotation,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Progress   int    `json:"progress"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type JobReportsResponse struct {
	JobID   string           `json:"job_id"`
	Reports []ReportResponse `json:"reports"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RuleSetToResponse(cameraID string, set *metadata.RuleSet) RulesResponse {
	resp := RulesResponse{
		CameraID: cameraID,
		Room:     set.Room,
		Rules:    make([]RuleResponse, len(set.Rules)),
		Rendered: analysis.RenderRules(set.Rules),
	}
	for i, r := range set.Rules {
		resp.Rules[i] = RuleResponse{ID: r.ID, Text: r.Text, Shared: r.Shared, Rooms: r.Rooms}
	}
	return resp
}

func ResultToResponse(res *analysis.Result) TextAnalysisResponse {
	resp := TextAnalysisResponse{
		Room:      res.Room,
		Reasoning: res.Reasoning,
		Reports:   make([]ReportResponse, len(res.Reports)),
	}
	for i, r := range res.Reports {
		resp.Reports[i] = ReportResponse{
			RuleID:      r.RuleID,
			Description: r.Description,
			Timestamp:   r.Timestamp.Format(time.RFC3339Nano),
		}
	}
	if res.Diagnostic != nil {
		resp.Diagnostic = res.Diagnostic.Error()
	}
	return resp
}

func JobToResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Status:     j.Status,
		CameraID:   j.CameraID,
		UserID:     j.UserID,
		Room:       j.Room,
		VideoPath:  j.VideoPath,
		Annotation: j.Annotation,
		Diagnostic: j.Diagnostic,
		Progress:   j.Progress,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func ReportToResponse(r *jobs.Report) ReportResponse {
	return ReportResponse{
		RuleID:      r.RuleID,
		Description: r.Description,
		Timestamp:   r.DetectedAt.Format(time.RFC3339Nano),
	}
}
