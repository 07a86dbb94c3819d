// Package ai defines the interface to the language-model collaborator
// used by the AI-backed extractor, plus helpers for structured output.
package ai

import "context"

// GenerateOptions holds configuration for generation requests.
type GenerateOptions struct {
	Model         string
	SystemPrompts []string
	Temperature   float64
}

// GenerateOption is a functional option for generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel sets the model used for a single request.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) { o.Model = model }
}

// WithSystemPrompts prepends system prompts to the request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) { o.SystemPrompts = prompts }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = temp }
}

// ModelMetrics accumulates token usage and wall time across calls.
type ModelMetrics struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

// Client is the language-model capability the extraction adapter
// depends on. Implementations wrap a specific vendor API; callers treat
// failures as transient and never retry internally.
type Client interface {
	GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateCompletionWithFormat asks the model for output conforming
	// to the JSON schema of out and unmarshals the response into it.
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	GetMetrics() ModelMetrics
	ResetMetrics()
}
