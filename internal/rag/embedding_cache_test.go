package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmbeddingCacheLocalRoundTrip(t *testing.T) {
	cache := NewEmbeddingCache(nil, "emb:", time.Hour)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "refund policy", "test-model")
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, "refund policy", "test-model", []float32{0.1, 0.2, 0.3}))

	vec, ok := cache.Get(ctx, "refund policy", "test-model")
	require.True(t, ok)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	// 不同模型不共享缓存条目
	_, ok = cache.Get(ctx, "refund policy", "another-model")
	require.False(t, ok)
}

func TestEmbeddingCacheOverwriteKeepsCount(t *testing.T) {
	cache := NewEmbeddingCache(nil, "emb:", time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "refund policy", "test-model", []float32{0.1}))
	require.EqualValues(t, 1, cache.localCount)

	// 同键重复写入只覆盖值,不推高条目计数
	require.NoError(t, cache.Set(ctx, "refund policy", "test-model", []float32{0.2}))
	require.EqualValues(t, 1, cache.localCount)

	require.NoError(t, cache.Set(ctx, "billing faq", "test-model", []float32{0.3}))
	require.EqualValues(t, 2, cache.localCount)

	vec, ok := cache.Get(ctx, "refund policy", "test-model")
	require.True(t, ok)
	require.Equal(t, []float32{0.2}, vec)
}

func TestEmbeddingCacheGetBatchSplitsHitsAndMisses(t *testing.T) {
	cache := NewEmbeddingCache(nil, "emb:", time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "hit one", "m", []float32{1}))
	require.NoError(t, cache.Set(ctx, "hit two", "m", []float32{2}))

	hits, missing := cache.GetBatch(ctx, []string{"hit one", "miss one", "hit two", "miss two"}, "m")
	require.Len(t, hits, 2)
	require.Equal(t, []string{"miss one", "miss two"}, missing)
}

func TestCachedProviderEmbedBatchOnlyCallsProviderForMisses(t *testing.T) {
	fake := &fakeEmbeddingProvider{}
	cache := NewEmbeddingCache(nil, "emb:", time.Hour)
	provider := NewCachedEmbeddingProvider(fake, cache)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "already cached", fake.GetModel(), []float32{9, 9, 9}))

	vectors, err := provider.EmbedBatch(ctx, []string{"already cached", "fresh text"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Equal(t, []float32{9, 9, 9}, vectors[0])
	require.Equal(t, []float32{1, 0, 0}, vectors[1])
	require.Equal(t, 1, fake.embedCalls)

	// 第二次调用全部命中缓存
	_, err = provider.EmbedBatch(ctx, []string{"already cached", "fresh text"})
	require.NoError(t, err)
	require.Equal(t, 1, fake.embedCalls)
}

func TestCachedProviderEmbedCachesResult(t *testing.T) {
	fake := &fakeEmbeddingProvider{}
	provider := NewCachedEmbeddingProvider(fake, NewEmbeddingCache(nil, "emb:", time.Hour))
	ctx := context.Background()

	first, err := provider.Embed(ctx, "what is the return window")
	require.NoError(t, err)
	second, err := provider.EmbedQuery(ctx, "what is the return window")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, fake.embedCalls)
}
