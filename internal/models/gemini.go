package models

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/invision-ai/invision/internal/logging"
)

const (
	DefaultGeminiModel      = "gemini-2.0-flash-001"
	DefaultGeminiAPIVersion = "v1"
)

// GeminiOptions configures the Gemini video model.
type GeminiOptions struct {
	APIKey     string
	APIVersion string // default "v1"
	Model      string // default gemini-2.0-flash-001
	BaseURL    string // override for tests and proxies
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Gemini is a VideoModel backed by the Google Gen AI SDK.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultGeminiAPIVersion
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: opts.APIVersion,
			BaseURL:    opts.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	logger := logging.WithComponent(logging.OrDiscard(opts.Logger), "gemini")
	logger.Debug("gemini client ready",
		"model", opts.Model,
		"api_version", opts.APIVersion,
		"api_key", logging.SanitizeToken(opts.APIKey),
	)

	return &Gemini{client: client, model: opts.Model, logger: logger}, nil
}

func (g *Gemini) GenerateFromVideo(ctx context.Context, prompt string, video Media) (*GenerationResult, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(video.Data, video.MIMEType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	result := fromGenAI(resp)
	g.logger.Debug("gemini response received", "candidates", len(result.Candidates))
	return result, nil
}

// fromGenAI drops nil candidates, nil contents and empty parts.
func fromGenAI(resp *genai.GenerateContentResponse) *GenerationResult {
	result := &GenerationResult{}
	if resp == nil {
		return result
	}

	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var cand Candidate
		for _, p := range c.Content.Parts {
			if p == nil || p.Text == "" {
				continue
			}
			cand.Segments = append(cand.Segments, Segment{Text: p.Text})
		}
		result.Candidates = append(result.Candidates, cand)
	}
	return result
}
