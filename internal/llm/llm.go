package llm

import (
	"context"
	"errors"

	"fiskeat/internal/config"
	"fiskeat/internal/shared"
)

// ErrNoProvider is returned when neither Gemini nor Groq is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

// NewTextGenerator picks Gemini when a key is present and falls back to Groq.
func NewTextGenerator(ctx context.Context, cfg *config.Config) (TextGenerator, error) {
	if cfg.GeminiAPIKey != "" {
		return NewGeminiClient(ctx, cfg)
	}
	if cfg.GroqAPIKey != "" {
		return NewGroqClient(cfg), nil
	}
	return nil, ErrNoProvider
}
