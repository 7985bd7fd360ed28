package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/docuchat/backend-go/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheHitStats 缓存命中率统计
type CacheHitStats struct {
	hits   int64
	misses int64
	mu     sync.RWMutex
}

func (s *CacheHitStats) record(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

// Snapshot 返回当前命中/未命中计数
func (s *CacheHitStats) Snapshot() (hits, misses int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits, s.misses
}

// CachedEmbedder 在Embedder外包一层Redis缓存。
// 相同文本的向量化结果是确定的，缓存命中直接复用，索引重建可复现。
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	stats  *CacheHitStats
}

// NewCachedEmbedder 创建带缓存的嵌入生成器，client为nil时退化为直通
func NewCachedEmbedder(inner Embedder, client *redis.Client, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		model:  model,
		ttl:    ttl,
		stats:  &CacheHitStats{},
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return fmt.Sprintf("embedding:%s:%s", c.model, hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.cacheKey(text)).Bytes()
	if err != nil {
		c.stats.record(false)
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		c.stats.record(false)
		return nil, false
	}
	c.stats.record(true)
	return vec, true
}

func (c *CachedEmbedder) store(ctx context.Context, text string, vec []float32) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.cacheKey(text), raw, c.ttl).Err(); err != nil {
		logger.Debug("嵌入缓存写入失败", zap.Error(err))
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(ctx, text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, text, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	// 只把未命中的文本发往底层embedder，保持输入顺序
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		fresh, err := c.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range fresh {
			vectors[missingIdx[j]] = vec
			c.store(ctx, missing[j], vec)
		}
	}

	return vectors, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Ready() bool {
	return c.inner.Ready()
}

// Stats 返回缓存命中统计
func (c *CachedEmbedder) Stats() *CacheHitStats {
	return c.stats
}
