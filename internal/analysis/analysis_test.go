package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/invision-ai/invision/internal/metadata"
	"github.com/invision-ai/invision/internal/models"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type fakeChat struct {
	replies  []string
	err      error
	requests []models.ChatRequest
}

func (c *fakeChat) Complete(_ context.Context, req models.ChatRequest) (*models.ChatResult, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	reply := c.replies[len(c.requests)-1]
	return &models.ChatResult{Model: req.Model, Message: models.Message{Role: models.RoleAssistant, Content: reply}}, nil
}

type fakeStore struct {
	set *metadata.RuleSet
	err error
}

func (s fakeStore) RoomName(context.Context, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.set.Room, nil
}

func (s fakeStore) ApplicableRules(context.Context, string, string) (*metadata.RuleSet, error) {
	return s.set, s.err
}

func lobbyStore() fakeStore {
	return fakeStore{set: &metadata.RuleSet{
		Room: "main lobby",
		Rules: []metadata.Rule{
			{ID: "3", Text: "Maintain professional behavior."},
			{ID: "4", Text: "No loitering in the corridors."},
		},
	}}
}

func TestRenderRules(t *testing.T) {
	t.Parallel()

	got := RenderRules(lobbyStore().set.Rules)
	require.Equal(t, "Rule 3: Maintain professional behavior.\nRule 4: No loitering in the corridors.", got)
	require.Empty(t, RenderRules(nil))
}

func TestRenderRules_OnlyFilteredRules(t *testing.T) {
	t.Parallel()

	rules := []metadata.Rule{
		{ID: "1", Text: "Lobby only.", Rooms: []string{"lobby"}},
		{ID: "2", Text: "Kitchen only.", Rooms: []string{"kitchen"}},
		{ID: "3", Text: "Everywhere.", Shared: true},
	}

	got := RenderRules(metadata.FilterApplicable("lobby", rules))
	require.Equal(t, []string{"Rule 1: Lobby only.", "Rule 3: Everywhere."}, strings.Split(got, "\n"))
}

func TestReasoningPrompt(t *testing.T) {
	t.Parallel()

	p := ReasoningPrompt("main lobby", "- someone runs", "Rule 3: Walk.")
	require.Contains(t, p, "from camera 'main lobby'")
	require.Contains(t, p, "<transcript>\n- someone runs</transcript>")
	require.Contains(t, p, "<rules>\nRule 3: Walk.</rules>")
	require.Contains(t, p, "Do not format it in JSON yet")
}

func TestParseReports_Empty(t *testing.T) {
	t.Parallel()

	reports, diag := ParseReports(`{"analysis": []}`, fixedNow)
	require.Nil(t, diag)
	require.NotNil(t, reports)
	require.Empty(t, reports)
}

func TestParseReports_UsesParseTime(t *testing.T) {
	t.Parallel()

	raw := `{"analysis":[{"rule_id":"3","description":"ran in hallway","timestamp":"2024-01-01T00:00:00"}]}`
	reports, diag := ParseReports(raw, fixedNow)
	require.Nil(t, diag)
	require.Len(t, reports, 1)
	require.Equal(t, "3", reports[0].RuleID)
	require.Equal(t, "ran in hallway", reports[0].Description)
	require.Equal(t, fixedNow, reports[0].Timestamp)
}

func TestParseReports_SharedTimestamp(t *testing.T) {
	t.Parallel()

	raw := `{"analysis":[{"rule_id":"1","description":"a"},{"rule_id":"2","description":"b"}]}`
	reports, diag := ParseReports(raw, fixedNow)
	require.Nil(t, diag)
	require.Len(t, reports, 2)
	require.Equal(t, reports[0].Timestamp, reports[1].Timestamp)
}

func TestParseReports_NumericAndMissingFields(t *testing.T) {
	t.Parallel()

	raw := "  \n" + `{"analysis":[{"rule_id":4},{"rule_id":null,"description":"x"}]}` + "\n"
	reports, diag := ParseReports(raw, fixedNow)
	require.Nil(t, diag)
	require.Len(t, reports, 2)
	require.Equal(t, "4", reports[0].RuleID)
	require.Equal(t, "", reports[0].Description)
	require.Equal(t, "", reports[1].RuleID)
	require.Equal(t, "x", reports[1].Description)
}

func TestParseReports_Malformed(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not json":         "I found two breaches.",
		"missing analysis": `{"breaches": []}`,
		"null analysis":    `{"analysis": null}`,
		"analysis object":  `{"analysis": {"rule_id": "1"}}`,
		"null entry":       `{"analysis": [null]}`,
		"bad rule id":      `{"analysis": [{"rule_id": true}]}`,
		"bare array":       `[{"rule_id": "1"}]`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			reports, diag := ParseReports(raw, fixedNow)
			require.Empty(t, reports)
			require.NotNil(t, diag)
			require.Equal(t, raw, diag.Raw)
			require.Error(t, diag)
		})
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{replies: []string{
		"  Rule 3 was breached: someone ran in the hallway.\n",
		`{"analysis":[{"rule_id":"3","description":"ran in hallway","timestamp":"2024-01-01T00:00:00"}]}`,
	}}
	a := NewAnalyzer(lobbyStore(), chat, Options{Now: func() time.Time { return fixedNow }})

	result, err := a.Analyze(context.Background(), "- a person runs", "camera2", "alice")
	require.NoError(t, err)
	require.Nil(t, result.Diagnostic)
	require.Equal(t, "main lobby", result.Room)
	require.Equal(t, "Rule 3 was breached: someone ran in the hallway.", result.Reasoning)
	require.Equal(t, []BreachReport{{RuleID: "3", Timestamp: fixedNow, Description: "ran in hallway"}}, result.Reports)

	require.Len(t, chat.requests, 2)

	first := chat.requests[0]
	require.Equal(t, DefaultReasoningModel, first.Model)
	require.False(t, first.JSONOutput)
	require.Len(t, first.Messages, 1)
	prompt := first.Messages[0].Content
	require.Equal(t, ReasoningPrompt("main lobby", "- a person runs", RenderRules(lobbyStore().set.Rules)), prompt)

	second := chat.requests[1]
	require.Equal(t, DefaultExtractionModel, second.Model)
	require.True(t, second.JSONOutput)
	require.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: prompt},
		{Role: models.RoleAssistant, Content: "Rule 3 was breached: someone ran in the hallway."},
		{Role: models.RoleUser, Content: ExtractionPrompt},
	}, second.Messages)
}

func TestAnalyze_CustomModels(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{replies: []string{"none", `{"analysis": []}`}}
	a := NewAnalyzer(lobbyStore(), chat, Options{ReasoningModel: "o3-mini", ExtractionModel: "gpt-4o"})

	result, err := a.Analyze(context.Background(), "", "camera2", "alice")
	require.NoError(t, err)
	require.Empty(t, result.Reports)
	require.Equal(t, "o3-mini", chat.requests[0].Model)
	require.Equal(t, "gpt-4o", chat.requests[1].Model)
}

func TestAnalyze_UnparseableReply(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{replies: []string{"prose", "not json at all"}}
	a := NewAnalyzer(lobbyStore(), chat, Options{})

	result, err := a.Analyze(context.Background(), "text", "camera2", "alice")
	require.NoError(t, err)
	require.Empty(t, result.Reports)
	require.NotNil(t, result.Diagnostic)
	require.Equal(t, "not json at all", result.Diagnostic.Raw)
}

func TestAnalyze_LookupError(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	a := NewAnalyzer(fakeStore{err: metadata.ErrNotFound}, chat, Options{})

	_, err := a.Analyze(context.Background(), "text", "ghost", "alice")
	require.ErrorIs(t, err, metadata.ErrNotFound)
	require.Empty(t, chat.requests)
}

func TestAnalyze_TransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	a := NewAnalyzer(lobbyStore(), &fakeChat{err: boom}, Options{})

	_, err := a.Analyze(context.Background(), "text", "camera2", "alice")
	require.ErrorIs(t, err, boom)
}

func TestBreachReport_String(t *testing.T) {
	t.Parallel()

	r := BreachReport{RuleID: "3", Timestamp: fixedNow, Description: "ran"}
	require.Equal(t, "rule 3 breached at 2025-03-14T09:26:53Z: ran", r.String())
}

func TestResult_JSONCarriesDiagnostic(t *testing.T) {
	t.Parallel()

	reports, diag := ParseReports("garbage", time.Now())
	broken, err := json.Marshal(&Result{Room: "r", Reports: reports, Diagnostic: diag})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(broken, &got))
	d, ok := got["diagnostic"].(map[string]any)
	require.True(t, ok, "diagnostic missing: %s", broken)
	require.Equal(t, "garbage", d["raw"])
	require.Contains(t, d["error"], "unparseable extraction reply")

	clean, err := json.Marshal(&Result{Room: "r", Reports: []BreachReport{}})
	require.NoError(t, err)
	require.NotContains(t, string(clean), "diagnostic")
}
