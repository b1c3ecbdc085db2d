package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEmbeddingService(embedder *fakeEmbedder, cache EmbeddingCache) *EmbeddingService {
	return NewEmbeddingService(embedder, cache, 8, 3, 2, nil)
}

func TestEmbeddingService_CacheHitSkipsBackend(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := newTestEmbeddingService(embedder, newMemoryCache())
	ctx := context.Background()

	first, err := svc.Embed(ctx, "slow checkout flow")
	require.NoError(t, err)
	require.Equal(t, 1, embedder.callCount())

	second, err := svc.Embed(ctx, "slow checkout flow")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, embedder.callCount())
}

func TestEmbeddingService_EmptyTextIsZeroVector(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := newTestEmbeddingService(embedder, newMemoryCache())

	for _, text := range []string{"", "   ", "\n\t"} {
		vec, err := svc.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, vec, 8)
		for _, v := range vec {
			require.Zero(t, v)
		}
	}
	require.Zero(t, embedder.callCount())
}

func TestEmbeddingService_CacheErrorDegradesToMiss(t *testing.T) {
	embedder := &fakeEmbedder{}
	cache := newMemoryCache()
	cache.getErr = errors.New("disk full")
	cache.putErr = errors.New("disk full")
	svc := newTestEmbeddingService(embedder, cache)
	ctx := context.Background()

	_, err := svc.Embed(ctx, "pricing")
	require.NoError(t, err)
	_, err = svc.Embed(ctx, "pricing")
	require.NoError(t, err)
	// Without a working cache both calls hit the backend.
	require.Equal(t, 2, embedder.callCount())
}

func TestEmbeddingService_NilCache(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := newTestEmbeddingService(embedder, nil)

	vec, err := svc.Embed(context.Background(), "no cache configured")
	require.NoError(t, err)
	require.Len(t, vec, 8)
}

func TestEmbeddingService_EmbedBatchPreservesOrder(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"alpha": {1, 0},
		"beta":  {0, 1},
		"gamma": {1, 1},
	}}
	svc := newTestEmbeddingService(embedder, newMemoryCache())

	texts := []string{"alpha", "", "beta", "gamma", "alpha"}
	vectors, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	require.Equal(t, []float64{1, 0}, vectors[0])
	require.Len(t, vectors[1], 8) // empty text maps to the zero vector
	require.Equal(t, []float64{0, 1}, vectors[2])
	require.Equal(t, []float64{1, 1}, vectors[3])
	require.Equal(t, []float64{1, 0}, vectors[4])
}

func TestEmbeddingService_EmbedBatchPropagatesBackendError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("backend down")}
	svc := newTestEmbeddingService(embedder, newMemoryCache())

	_, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

func TestEmbeddingService_Similarity(t *testing.T) {
	svc := newTestEmbeddingService(&fakeEmbedder{}, nil)

	v := []float64{0.6, 0.8}
	require.InDelta(t, 1.0, svc.Similarity(v, v), 1e-9)
	require.InDelta(t, -1.0, svc.Similarity(v, []float64{-0.6, -0.8}), 1e-9)
	require.Zero(t, svc.Similarity(nil, v))
}

func TestHash_Deterministic(t *testing.T) {
	require.Equal(t, Hash("text"), Hash("text"))
	require.NotEqual(t, Hash("text"), Hash("Text"))
	require.NotEqual(t, Hash("text"), Hash("text "))
	require.Len(t, Hash("text"), 64)
}
