// Package provider provides unified AI backend abstractions for text
// generation and embedding generation. A backend may support one or both
// capabilities.
package provider

import (
	"context"
	"errors"
)

// Common errors.
var (
	// ErrUnsupportedOperation indicates the backend doesn't support the requested operation.
	ErrUnsupportedOperation = errors.New("operation not supported by this backend")

	// ErrBackendUnavailable indicates the backend could not be reached or
	// kept failing after retries were exhausted.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Embedder generates embedding vectors for text.
type Embedder interface {
	// Embed generates one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// GenerationOptions tunes a text generation call.
type GenerationOptions struct {
	temperature float64
	topP        float64
	maxTokens   int
}

// NewGenerationOptions creates GenerationOptions with provider defaults.
func NewGenerationOptions() GenerationOptions {
	return GenerationOptions{}
}

// WithTemperature returns a copy with the sampling temperature set.
func (o GenerationOptions) WithTemperature(t float64) GenerationOptions {
	o.temperature = t
	return o
}

// WithTopP returns a copy with nucleus sampling set.
func (o GenerationOptions) WithTopP(p float64) GenerationOptions {
	o.topP = p
	return o
}

// WithMaxTokens returns a copy with the completion token cap set.
func (o GenerationOptions) WithMaxTokens(n int) GenerationOptions {
	o.maxTokens = n
	return o
}

// Temperature returns the sampling temperature (0 means provider default).
func (o GenerationOptions) Temperature() float64 { return o.temperature }

// TopP returns the nucleus sampling value (0 means provider default).
func (o GenerationOptions) TopP() float64 { return o.topP }

// MaxTokens returns the completion token cap (0 means provider default).
func (o GenerationOptions) MaxTokens() int { return o.maxTokens }

// TextGenerator generates free-form text from a prompt.
type TextGenerator interface {
	// Generate returns the completion text for the given prompt.
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
}

// Provider describes a backend's capabilities and lifecycle.
type Provider interface {
	// SupportsTextGeneration returns true if the backend can generate text.
	SupportsTextGeneration() bool

	// SupportsEmbedding returns true if the backend can generate embeddings.
	SupportsEmbedding() bool

	// Close releases any resources held by the backend.
	Close() error
}

// FullProvider implements both text generation and embedding.
type FullProvider interface {
	Provider
	TextGenerator
	Embedder
}
