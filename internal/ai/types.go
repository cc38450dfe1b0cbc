package ai

import (
	"context"
)

// Request represents a single inference call. Image is optional; when set
// the call is a vision request.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Image        []byte
	ImageMIME    string
	MaxTokens    int
	Temperature  float64
}

type Response struct {
	Text         string
	TokensIn     int
	TokensOut    int
	FinishReason string
}

// Client interface for providers like Gemini, OpenAI, Anthropic.
type Client interface {
	Name() string
	Do(ctx context.Context, req Request) (Response, error)
}
