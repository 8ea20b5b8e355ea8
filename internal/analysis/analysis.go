// Package analysis checks a video annotation against the conduct rules of the
// camera's room and extracts structured breach reports.
//
// Analysis runs two chat completions. The reasoning pass asks a reasoning
// model for a prose report of breaches. The extraction pass replays that
// exchange to a second model constrained to JSON output and asks for the
// breaches as {"analysis": [...]}. The reply is decoded by ParseReports.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invision-ai/invision/internal/logging"
	"github.com/invision-ai/invision/internal/metadata"
	"github.com/invision-ai/invision/internal/models"
)

const (
	DefaultReasoningModel  = "o1-preview"
	DefaultExtractionModel = "gpt-4o-mini"
)

// ExtractionPrompt is the follow-up instruction of the extraction pass.
const ExtractionPrompt = `Were there any breaches? If so, let's format the breaches you found into a valid JSON array where each item contains "rule_id" (important), "description", and a timestamp in ISO format.

Output only a JSON array, with no additional explanations. eg. { "analysis": [ ... ] }. If no breaches were detected, output an empty array.`

// RenderRules renders one "Rule <id>: <text>" line per rule, in order.
func RenderRules(rules []metadata.Rule) string {
	lines := make([]string, len(rules))
	for i, r := range rules {
		lines[i] = fmt.Sprintf("Rule %s: %s", r.ID, r.Text)
	}
	return strings.Join(lines, "\n")
}

// ReasoningPrompt builds the single user message of the reasoning pass.
func ReasoningPrompt(room, annotation, rulesText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a video analysis assistant. The following is a description of events "+
		"from camera '%s'. Check if any actions breach the code-of-conduct rules provided.\n\n", room)
	fmt.Fprintf(&b, "Video Annotations:\n<transcript>\n%s</transcript>\n\n", annotation)
	fmt.Fprintf(&b, "Code-of-Conduct Rules:\n<rules>\n%s</rules>\n\n", rulesText)
	b.WriteString("List all detected breaches with a brief explanation. Do not format it in JSON yet. " +
		"Simply describe the breaches as if you were summarizing them in a report.")
	return b.String()
}

// Result is the outcome of one analysis.
type Result struct {
	Room      string          `json:"room"`
	Rules     []metadata.Rule `json:"rules"`
	Reasoning string          `json:"reasoning"`
	Reports   []BreachReport  `json:"reports"`
	// Diagnostic is set when the extraction reply could not be parsed; Reports
	// is then empty.
	Diagnostic *ParseDiagnostic `json:"diagnostic,omitempty"`
}

type Options struct {
	ReasoningModel  string // default o1-preview
	ExtractionModel string // default gpt-4o-mini
	Now             func() time.Time
	Logger          *slog.Logger
}

// Analyzer runs the reasoning and extraction passes.
type Analyzer struct {
	store           metadata.Store
	chat            models.ChatModel
	reasoningModel  string
	extractionModel string
	now             func() time.Time
	logger          *slog.Logger
}

func NewAnalyzer(store metadata.Store, chat models.ChatModel, opts Options) *Analyzer {
	if opts.ReasoningModel == "" {
		opts.ReasoningModel = DefaultReasoningModel
	}
	if opts.ExtractionModel == "" {
		opts.ExtractionModel = DefaultExtractionModel
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Analyzer{
		store:           store,
		chat:            chat,
		reasoningModel:  opts.ReasoningModel,
		extractionModel: opts.ExtractionModel,
		now:             opts.Now,
		logger:          logging.WithComponent(logging.OrDiscard(opts.Logger), "analysis"),
	}
}

// Analyze checks annotation against the rules that apply to cameraID for
// userID. Lookup and transport failures are returned as errors; an
// unparseable extraction reply is not an error and is reported through
// Result.Diagnostic.
func (a *Analyzer) Analyze(ctx context.Context, annotation, cameraID, userID string) (*Result, error) {
	logger := logging.WithCameraID(a.logger, cameraID).With("user_id", userID)

	set, err := a.store.ApplicableRules(ctx, cameraID, userID)
	if err != nil {
		return nil, err
	}

	prompt := ReasoningPrompt(set.Room, annotation, RenderRules(set.Rules))
	logger.Info("running reasoning pass", "model", a.reasoningModel, "rules", len(set.Rules))

	first, err := a.chat.Complete(ctx, models.ChatRequest{
		Model:    a.reasoningModel,
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning pass: %w", err)
	}
	reasoning := strings.TrimSpace(first.Message.Content)

	logger.Info("running extraction pass", "model", a.extractionModel)
	second, err := a.chat.Complete(ctx, models.ChatRequest{
		Model: a.extractionModel,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: prompt},
			{Role: models.RoleAssistant, Content: reasoning},
			{Role: models.RoleUser, Content: ExtractionPrompt},
		},
		JSONOutput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction pass: %w", err)
	}

	reports, diag := ParseReports(second.Message.Content, a.now())
	if diag != nil {
		logger.Warn("no breach reports generated", "error", diag.Err, "response", diag.Raw)
	} else {
		logger.Info("analysis complete", "breaches", len(reports))
	}

	return &Result{
		Room:       set.Room,
		Rules:      set.Rules,
		Reasoning:  reasoning,
		Reports:    reports,
		Diagnostic: diag,
	}, nil
}
