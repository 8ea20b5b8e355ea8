package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/invision-ai/invision/internal/analysis"
	"github.com/invision-ai/invision/internal/bus"
	"github.com/invision-ai/invision/internal/db"
	"github.com/invision-ai/invision/internal/metadata"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewRepository(database.Conn())
}

type fakeAnnotator struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeAnnotator) Annotate(ctx context.Context, cameraID, videoPath string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type fakeAnalyzer struct {
	calls      atomic.Int32
	annotation string
	result     *analysis.Result
	err        error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, annotation, cameraID, userID string) (*analysis.Result, error) {
	f.calls.Add(1)
	f.annotation = annotation
	return f.result, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []bus.BreachEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, evt bus.BreachEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakePublisher) Close() {}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

var detectedAt = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func breachResult() *analysis.Result {
	return &analysis.Result{
		Room: "main lobby",
		Rules: []metadata.Rule{
			{ID: "3", Text: "Maintain professional behavior."},
			{ID: "4", Text: "No loitering in the corridors."},
		},
		Reasoning: "Two breaches.",
		Reports: []analysis.BreachReport{
			{RuleID: "3", Timestamp: detectedAt, Description: "shouting"},
			{RuleID: "4", Timestamp: detectedAt, Description: "loitering"},
		},
	}
}

func createTestJob(t *testing.T, repo Repository) *Job {
	t.Helper()

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Status:    JobStatusPending,
		CameraID:  "camera2",
		UserID:    "alice",
		VideoPath: "/videos/lobby.mp4",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestProcessJob_Completes(t *testing.T) {
	repo := setupRepo(t)
	annotator := &fakeAnnotator{text: "- a person shouts"}
	analyzer := &fakeAnalyzer{result: breachResult()}
	pub := &fakePublisher{}
	runner := NewRunner(repo, annotator, analyzer, pub, 0, nil)

	job := createTestJob(t, repo)

	if !runner.processNextJob(context.Background()) {
		t.Fatal("processNextJob() = false, want true")
	}

	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusCompleted {
		t.Errorf("job status = %s, want %s", got.Status, JobStatusCompleted)
	}
	if got.Progress != 100 {
		t.Errorf("job progress = %d, want 100", got.Progress)
	}
	if got.Annotation != "- a person shouts" {
		t.Errorf("job annotation = %q", got.Annotation)
	}
	if got.Room != "main lobby" {
		t.Errorf("job room = %q, want main lobby", got.Room)
	}
	if got.Diagnostic != "" {
		t.Errorf("job diagnostic = %q, want empty", got.Diagnostic)
	}
	if analyzer.annotation != "- a person shouts" {
		t.Errorf("analyzer got annotation %q", analyzer.annotation)
	}

	reports, err := repo.ListReports(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("len(reports) = %d, want 2", len(reports))
	}
	if reports[0].RuleID != "3" || reports[1].RuleID != "4" {
		t.Errorf("report rule ids = %s, %s", reports[0].RuleID, reports[1].RuleID)
	}
	if !reports[0].DetectedAt.Equal(detectedAt) {
		t.Errorf("report detected_at = %v, want %v", reports[0].DetectedAt, detectedAt)
	}

	if pub.count() != 2 {
		t.Fatalf("published %d events, want 2", pub.count())
	}
	if pub.events[0].JobID != job.ID || pub.events[0].Room != "main lobby" {
		t.Errorf("unexpected event: %+v", pub.events[0])
	}
}

func TestProcessJob_AnnotateFails(t *testing.T) {
	repo := setupRepo(t)
	annotator := &fakeAnnotator{err: errors.New("video file not found at /videos/lobby.mp4")}
	analyzer := &fakeAnalyzer{result: breachResult()}
	pub := &fakePublisher{}
	runner := NewRunner(repo, annotator, analyzer, pub, 0, nil)

	job := createTestJob(t, repo)
	runner.processNextJob(context.Background())

	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusFailed {
		t.Errorf("job status = %s, want %s", got.Status, JobStatusFailed)
	}
	if !strings.Contains(got.Error, "not found") {
		t.Errorf("job error = %q", got.Error)
	}
	if analyzer.calls.Load() != 0 {
		t.Errorf("analyzer called %d times, want 0", analyzer.calls.Load())
	}
	if pub.count() != 0 {
		t.Errorf("published %d events, want 0", pub.count())
	}
}

func TestProcessJob_AnalyzeFails(t *testing.T) {
	repo := setupRepo(t)
	annotator := &fakeAnnotator{text: "text"}
	analyzer := &fakeAnalyzer{err: metadata.ErrNotFound}
	runner := NewRunner(repo, annotator, analyzer, nil, 0, nil)

	job := createTestJob(t, repo)
	runner.processNextJob(context.Background())

	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusFailed {
		t.Errorf("job status = %s, want %s", got.Status, JobStatusFailed)
	}
	if got.Progress != 50 {
		t.Errorf("job progress = %d, want 50", got.Progress)
	}
	if got.Annotation != "text" {
		t.Errorf("annotation should be kept after analysis failure, got %q", got.Annotation)
	}
}

func TestProcessJob_RecordsDiagnostic(t *testing.T) {
	repo := setupRepo(t)
	analyzer := &fakeAnalyzer{result: &analysis.Result{
		Room:       "main lobby",
		Reports:    []analysis.BreachReport{},
		Diagnostic: &analysis.ParseDiagnostic{Raw: "not json", Err: errors.New("invalid character")},
	}}
	runner := NewRunner(repo, &fakeAnnotator{text: "text"}, analyzer, nil, 0, nil)

	job := createTestJob(t, repo)
	runner.processNextJob(context.Background())

	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusCompleted {
		t.Errorf("job status = %s, want %s", got.Status, JobStatusCompleted)
	}
	if !strings.Contains(got.Diagnostic, "not json") {
		t.Errorf("job diagnostic = %q, want raw reply", got.Diagnostic)
	}
}

func TestProcessJob_PublishErrorDoesNotFailJob(t *testing.T) {
	repo := setupRepo(t)
	pub := &fakePublisher{err: errors.New("nats down")}
	runner := NewRunner(repo, &fakeAnnotator{text: "text"}, &fakeAnalyzer{result: breachResult()}, pub, 0, nil)

	job := createTestJob(t, repo)
	runner.processNextJob(context.Background())

	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusCompleted {
		t.Errorf("job status = %s, want %s", got.Status, JobStatusCompleted)
	}
	if pub.count() != 2 {
		t.Errorf("publish attempts = %d, want 2", pub.count())
	}
}

func TestProcessNextJob_Empty(t *testing.T) {
	repo := setupRepo(t)
	annotator := &fakeAnnotator{}
	runner := NewRunner(repo, annotator, &fakeAnalyzer{}, nil, 0, nil)

	if runner.processNextJob(context.Background()) {
		t.Error("processNextJob() = true with no pending jobs")
	}
	if annotator.calls.Load() != 0 {
		t.Error("annotator should not be called")
	}
}

func TestRunner_StartPauseResume(t *testing.T) {
	repo := setupRepo(t)
	runner := NewRunner(repo, &fakeAnnotator{text: "text"}, &fakeAnalyzer{result: breachResult()}, nil, 10*time.Millisecond, nil)

	runner.Pause()
	job := createTestJob(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if !runner.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusPending {
		t.Errorf("paused runner processed job: status = %s", got.Status)
	}

	runner.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ = repo.GetJob(context.Background(), job.ID)
		if got.Status == JobStatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got.Status != JobStatusCompleted {
		t.Errorf("job status = %s after resume, want %s", got.Status, JobStatusCompleted)
	}

	cancel()
	<-done
	if runner.IsRunning() {
		t.Error("IsRunning() = true after stop")
	}
}
