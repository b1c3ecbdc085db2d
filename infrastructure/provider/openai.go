package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pulselens/themeline/internal/config"
)

// Default models when none is configured.
const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// errEmbeddingCountMismatch indicates the API returned fewer embedding vectors
// than requested. This is retryable because transient upstream issues (e.g.
// rate-limiting behind a 200 status) can produce partial responses.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// OpenAIProvider implements text generation and embedding against any
// OpenAI-compatible API (OpenAI, Ollama, vLLM, routing proxies).
type OpenAIProvider struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	maxRetries     int
	initialDelay   time.Duration
	backoffFactor  float64
}

// OpenAIOption is a functional option for OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithChatModel sets the chat completion model.
func WithChatModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.chatModel = model }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.embeddingModel = model }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) OpenAIOption {
	return func(p *OpenAIProvider) { p.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) { p.initialDelay = d }
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) OpenAIOption {
	return func(p *OpenAIProvider) { p.backoffFactor = f }
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		client:         openai.NewClient(apiKey),
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
		maxRetries:     config.DefaultMaxRetries,
		initialDelay:   config.DefaultInitialDelay,
		backoffFactor:  config.DefaultBackoffFactor,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// NewOpenAIProviderFromEndpoint creates a provider from endpoint configuration.
// The same Endpoint shape configures both embedding and generation backends;
// the model applies to whichever capability the caller uses.
func NewOpenAIProviderFromEndpoint(ep config.Endpoint) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(ep.APIKey())

	if ep.BaseURL() != "" {
		clientCfg.BaseURL = ep.BaseURL()
	}
	if ep.Timeout() > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: ep.Timeout()}
	}

	p := &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientCfg),
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
		maxRetries:     ep.MaxRetries(),
		initialDelay:   ep.InitialDelay(),
		backoffFactor:  ep.BackoffFactor(),
	}

	if ep.Model() != "" {
		p.chatModel = ep.Model()
		p.embeddingModel = ep.Model()
	}
	if p.maxRetries == 0 {
		p.maxRetries = config.DefaultMaxRetries
	}
	if p.initialDelay == 0 {
		p.initialDelay = config.DefaultInitialDelay
	}
	if p.backoffFactor == 0 {
		p.backoffFactor = config.DefaultBackoffFactor
	}

	return p
}

// SupportsTextGeneration returns true.
func (p *OpenAIProvider) SupportsTextGeneration() bool {
	return true
}

// SupportsEmbedding returns true.
func (p *OpenAIProvider) SupportsEmbedding() bool {
	return true
}

// Close is a no-op for the OpenAI provider.
func (p *OpenAIProvider) Close() error {
	return nil
}

// Generate returns the completion text for the given prompt.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	if opts.Temperature() > 0 {
		req.Temperature = float32(opts.Temperature())
	}
	if opts.TopP() > 0 {
		req.TopP = float32(opts.TopP())
	}
	if opts.MaxTokens() > 0 {
		req.MaxTokens = opts.MaxTokens()
	}

	var resp openai.ChatCompletionResponse
	var err error

	err = p.withRetry(ctx, func() error {
		resp, err = p.client.CreateChatCompletion(ctx, req)
		return err
	})

	if err != nil {
		return "", p.wrapError("generate", err)
	}

	if len(resp.Choices) == 0 {
		return "", NewError("generate", 0, "no choices in response", ErrBackendUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}

// Embed generates one embedding vector per input text, in input order.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	var err error

	err = p.withRetry(ctx, func() error {
		resp, err = p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), len(texts))
		}
		return nil
	})

	if err != nil {
		return nil, p.wrapError("embed", err)
	}

	embeddings := make([][]float64, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			embeddings[i][j] = float64(v)
		}
	}

	return embeddings, nil
}

// withRetry executes the function with exponential backoff retry.
func (p *OpenAIProvider) withRetry(ctx context.Context, fn func() error) error {
	delay := p.initialDelay
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !p.isRetryable(lastErr) {
			return lastErr
		}

		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * p.backoffFactor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable determines if an error should be retried.
func (p *OpenAIProvider) isRetryable(err error) bool {
	// Partial embedding responses are retryable. Upstream providers can
	// return 200 with missing data under transient load conditions.
	if errors.Is(err, errEmbeddingCountMismatch) {
		return true
	}

	// HTTP client timeouts are retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		// Network errors are retryable
		return true
	}

	return false
}

// wrapError wraps an OpenAI error into a backend Error.
func (p *OpenAIProvider) wrapError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return NewError(operation, 0, err.Error(), err)
}

// Ensure OpenAIProvider implements the interfaces.
var (
	_ FullProvider  = (*OpenAIProvider)(nil)
	_ TextGenerator = (*OpenAIProvider)(nil)
	_ Embedder      = (*OpenAIProvider)(nil)
)
