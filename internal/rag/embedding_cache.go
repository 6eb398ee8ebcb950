package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache 向量缓存,本地 L1 + Redis 两级
type EmbeddingCache struct {
	redis        *redis.Client
	localCache   sync.Map
	prefix       string
	ttl          time.Duration
	maxLocalSize int
	localCount   int64
	mu           sync.RWMutex
}

// CachedEmbedding 缓存的向量
type CachedEmbedding struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEmbeddingCache 创建向量缓存,redisClient 为 nil 时仅使用本地缓存
func NewEmbeddingCache(redisClient *redis.Client, prefix string, ttl time.Duration) *EmbeddingCache {
	if prefix == "" {
		prefix = "emb:"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EmbeddingCache{
		redis:        redisClient,
		prefix:       prefix,
		ttl:          ttl,
		maxLocalSize: 10000,
	}
}

// Get 获取缓存的向量
func (c *EmbeddingCache) Get(ctx context.Context, text, model string) ([]float32, bool) {
	key := c.makeKey(text, model)

	if val, ok := c.localCache.Load(key); ok {
		return val.(*CachedEmbedding).Vector, true
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var cached CachedEmbedding
			if json.Unmarshal(data, &cached) == nil {
				c.setLocal(key, &cached)
				return cached.Vector, true
			}
		}
	}

	return nil, false
}

// Set 写入缓存
func (c *EmbeddingCache) Set(ctx context.Context, text, model string, vector []float32) error {
	key := c.makeKey(text, model)
	cached := &CachedEmbedding{
		Vector:    vector,
		Model:     model,
		CreatedAt: time.Now(),
	}

	c.setLocal(key, cached)

	if c.redis != nil {
		data, err := json.Marshal(cached)
		if err != nil {
			return err
		}
		return c.redis.Set(ctx, key, data, c.ttl).Err()
	}
	return nil
}

// GetBatch 批量查缓存,返回命中结果与未命中的文本列表
func (c *EmbeddingCache) GetBatch(ctx context.Context, texts []string, model string) (map[string][]float32, []string) {
	results := make(map[string][]float32)
	var missing []string

	for _, text := range texts {
		if vec, ok := c.Get(ctx, text, model); ok {
			results[text] = vec
		} else {
			missing = append(missing, text)
		}
	}
	return results, missing
}

// SetBatch 批量写入缓存
func (c *EmbeddingCache) SetBatch(ctx context.Context, texts []string, model string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("文本与向量数量不一致: %d != %d", len(texts), len(vectors))
	}
	for i, text := range texts {
		if err := c.Set(ctx, text, model, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// makeKey 以 SHA256 哈希文本内容生成缓存键
func (c *EmbeddingCache) makeKey(text, model string) string {
	hash := sha256.Sum256([]byte(text))
	return c.prefix + model + ":" + hex.EncodeToString(hash[:16])
}

func (c *EmbeddingCache) setLocal(key string, cached *CachedEmbedding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.localCount >= int64(c.maxLocalSize) {
		c.evictLocal()
	}

	// 覆盖已有键时条目数不变
	if _, loaded := c.localCache.Load(key); !loaded {
		c.localCount++
	}
	c.localCache.Store(key, cached)
}

// evictLocal 本地缓存满时清理一半
func (c *EmbeddingCache) evictLocal() {
	count := 0
	c.localCache.Range(func(key, value interface{}) bool {
		if count < c.maxLocalSize/2 {
			c.localCache.Delete(key)
			count++
			return true
		}
		return false
	})
	c.localCount -= int64(count)
}

// CachedEmbeddingProvider 带缓存的 EmbeddingProvider 包装器
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	cache    *EmbeddingCache
}

// NewCachedEmbeddingProvider 包装原始提供者
func NewCachedEmbeddingProvider(provider EmbeddingProvider, cache *EmbeddingCache) *CachedEmbeddingProvider {
	return &CachedEmbeddingProvider{
		provider: provider,
		cache:    cache,
	}
}

// Embed 单条向量化,优先读缓存
func (p *CachedEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := p.provider.GetModel()

	if vec, ok := p.cache.Get(ctx, text, model); ok {
		return vec, nil
	}

	vec, err := p.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	_ = p.cache.Set(ctx, text, model, vec)
	return vec, nil
}

// EmbedBatch 批量向量化,仅对未命中的文本调用原始提供者
func (p *CachedEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := p.provider.GetModel()

	cached, missing := p.cache.GetBatch(ctx, texts, model)

	if len(missing) == 0 {
		result := make([][]float32, len(texts))
		for i, text := range texts {
			result[i] = cached[text]
		}
		return result, nil
	}

	missingVectors, err := p.provider.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	_ = p.cache.SetBatch(ctx, missing, model, missingVectors)

	missingMap := make(map[string][]float32, len(missing))
	for i, text := range missing {
		missingMap[text] = missingVectors[i]
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := cached[text]; ok {
			result[i] = vec
		} else {
			result[i] = missingMap[text]
		}
	}
	return result, nil
}

// EmbedQuery 查询向量化,与 Embed 共用缓存
func (p *CachedEmbeddingProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return p.Embed(ctx, query)
}

// GetModel 获取模型名称
func (p *CachedEmbeddingProvider) GetModel() string {
	return p.provider.GetModel()
}

// GetProviderName 获取提供者名称
func (p *CachedEmbeddingProvider) GetProviderName() string {
	return p.provider.GetProviderName()
}
