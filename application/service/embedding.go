package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pulselens/themeline/infrastructure/provider"
	"github.com/pulselens/themeline/infrastructure/search"
	"github.com/pulselens/themeline/internal/log"
)

// EmbeddingCache stores computed vectors keyed by content hash. Writes are
// insert-if-absent so duplicate computation under parallel execution is
// idempotent.
type EmbeddingCache interface {
	Get(ctx context.Context, textHash string) ([]float64, bool, error)
	Put(ctx context.Context, textHash string, vector []float64) error
}

// EmbeddingService is a content-addressed cache over an embedding backend.
// It is the foundation for all similarity computation: matching, merge and
// split detection, drift measurement, and keyword highlighting.
type EmbeddingService struct {
	embedder    provider.Embedder
	cache       EmbeddingCache
	dimension   int
	chunkSize   int
	parallelism int
	logger      *log.Logger
}

// NewEmbeddingService creates an EmbeddingService.
func NewEmbeddingService(embedder provider.Embedder, cache EmbeddingCache, dimension, chunkSize, parallelism int, logger *log.Logger) *EmbeddingService {
	if logger == nil {
		logger = log.Default()
	}
	if chunkSize < 1 {
		chunkSize = 1
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &EmbeddingService{
		embedder:    embedder,
		cache:       cache,
		dimension:   dimension,
		chunkSize:   chunkSize,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Hash returns the cache key for a text: the SHA-256 hex digest of the exact
// bytes, case- and whitespace-sensitive.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the embedding vector for the text, consulting the cache
// first. Empty or whitespace-only text never reaches the backend; it maps to
// a fixed-dimension zero vector, a documented degenerate case. Backend errors
// propagate; cache errors degrade to a miss.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float64, s.dimension), nil
	}

	key := Hash(text)
	if vec, ok := s.cacheGet(ctx, key); ok {
		return vec, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	vec := vectors[0]

	s.cachePut(ctx, key, vec)
	return vec, nil
}

// EmbedBatch returns one vector per text, in input order. Cache hits are
// returned directly; misses go to the backend in chunks of the configured
// size, one request per text, with bounded parallelism inside each chunk.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))

	var missIndexes []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float64, s.dimension)
			continue
		}
		if vec, ok := s.cacheGet(ctx, Hash(text)); ok {
			results[i] = vec
			continue
		}
		missIndexes = append(missIndexes, i)
	}

	var mu sync.Mutex
	for start := 0; start < len(missIndexes); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(missIndexes) {
			end = len(missIndexes)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.parallelism)
		for _, idx := range missIndexes[start:end] {
			idx := idx
			g.Go(func() error {
				vectors, err := s.embedder.Embed(gctx, []string{texts[idx]})
				if err != nil {
					return err
				}
				vec := vectors[0]
				s.cachePut(gctx, Hash(texts[idx]), vec)
				mu.Lock()
				results[idx] = vec
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// Similarity returns the cosine similarity of two vectors in [-1, 1].
// Returns 0 if either vector is empty.
func (s *EmbeddingService) Similarity(a, b []float64) float64 {
	return search.CosineSimilarity(a, b)
}

// Dimension returns the configured embedding vector dimension.
func (s *EmbeddingService) Dimension() int { return s.dimension }

// cacheGet reads the cache, treating any error as a miss. Caching is an
// optimization, never a correctness dependency.
func (s *EmbeddingService) cacheGet(ctx context.Context, key string) ([]float64, bool) {
	if s.cache == nil {
		return nil, false
	}
	vec, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "embedding cache read failed, treating as miss", "error", err)
		return nil, false
	}
	return vec, ok
}

func (s *EmbeddingService) cachePut(ctx context.Context, key string, vec []float64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, key, vec); err != nil {
		s.logger.WarnContext(ctx, "embedding cache write failed", "error", err)
	}
}
