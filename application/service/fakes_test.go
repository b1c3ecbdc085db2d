package service

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync"

	"github.com/pulselens/themeline/infrastructure/provider"
)

// fakeEmbedder is a deterministic in-memory embedding backend. Texts with an
// entry in vectors get that vector; everything else gets a unit vector
// derived from the text's hash so distinct texts stay distinct.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	calls   []string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		f.calls = append(f.calls, text)
		if vec, ok := f.vectors[text]; ok {
			out[i] = vec
			continue
		}
		out[i] = hashVector(text)
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// hashVector maps a text to a deterministic unit vector.
func hashVector(text string) []float64 {
	const dim = 8
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float64, dim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float64(int64(seed>>16)%1000) / 1000
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// fakeGenerator replays canned responses in order and records prompts.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	err       error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ provider.GenerationOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	if len(f.responses) == 0 {
		return "", errors.New("fakeGenerator: no canned responses left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// memoryCache is an in-memory EmbeddingCache with optional failure injection.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]float64
	getErr  error
	putErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]float64{}}
}

func (c *memoryCache) Get(_ context.Context, textHash string) ([]float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	vec, ok := c.entries[textHash]
	return vec, ok, nil
}

func (c *memoryCache) Put(_ context.Context, textHash string, vector []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[textHash] = vector
	return nil
}
