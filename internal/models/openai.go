package models

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/invision-ai/invision/internal/logging"
)

// OpenAIOptions configures the OpenAI chat model.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string // e.g. https://api.openai.com/v1; override for tests and proxies
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAI is a ChatModel backed by the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	logger *slog.Logger
}

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	logger := logging.WithComponent(logging.OrDiscard(opts.Logger), "openai")
	logger.Debug("openai client ready", "base_url", cfg.BaseURL, "api_key", logging.SanitizeToken(opts.APIKey))

	return &OpenAI{client: openai.NewClientWithConfig(cfg), logger: logger}, nil
}

func (o *OpenAI) Complete(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	creq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.JSONOutput {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion (%s): %w", req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion (%s): %w", req.Model, ErrEmptyResult)
	}

	o.logger.Debug("openai response received",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	choice := resp.Choices[0].Message
	return &ChatResult{
		Model:   resp.Model,
		Message: Message{Role: Role(choice.Role), Content: choice.Content},
	}, nil
}
