// Package models wraps the hosted AI endpoints behind two small interfaces:
// VideoModel for multimodal video description and ChatModel for text chat
// completion. Responses are converted into explicit result types so callers
// check for missing content instead of reaching into SDK structures.
package models

import (
	"context"
	"errors"
)

var (
	// ErrEmptyResult is returned when a model response has no usable text.
	ErrEmptyResult = errors.New("model returned no content")
	// ErrMissingAPIKey is returned by constructors given an empty API key.
	ErrMissingAPIKey = errors.New("api key is required")
)

// Segment is one text part of a candidate.
type Segment struct {
	Text string
}

// Candidate is one alternative response from a generative model.
type Candidate struct {
	Segments []Segment
}

// GenerationResult is the typed response of a VideoModel call.
type GenerationResult struct {
	Candidates []Candidate
}

// FirstText returns the first segment of the first candidate.
func (r *GenerationResult) FirstText() (string, error) {
	if r == nil || len(r.Candidates) == 0 {
		return "", ErrEmptyResult
	}
	segs := r.Candidates[0].Segments
	if len(segs) == 0 {
		return "", ErrEmptyResult
	}
	return segs[0].Text, nil
}

// Media is a binary payload tagged with its media type.
type Media struct {
	Data     []byte
	MIMEType string
}

// VideoModel describes video content given a text instruction.
type VideoModel interface {
	GenerateFromVideo(ctx context.Context, prompt string, video Media) (*GenerationResult, error)
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest is a single chat completion call.
type ChatRequest struct {
	Model    string
	Messages []Message
	// JSONOutput constrains the reply to a JSON object.
	JSONOutput bool
}

// ChatResult is the response message of a ChatModel call.
type ChatResult struct {
	Model   string
	Message Message
}

// ChatModel completes a conversation.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResult, error)
}
