package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"shakespeare-quote-api/internal/application/quote"
	"shakespeare-quote-api/internal/infrastructure/persistence/redis"
	"shakespeare-quote-api/pkg/logger"
	"shakespeare-quote-api/pkg/metrics"
)

// CachedEmbedder 在 Redis 上缓存查询向量的 Embedder 装饰器。
// 只缓存单条查询（检索热路径）；批量入库路径不走缓存。
// 缓存故障降级为直连 embedding 服务，不向调用方冒泡。
type CachedEmbedder struct {
	inner quote.Embedder
	cache *redis.Cache
	model string
	ttl   time.Duration
}

var _ quote.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder 创建带缓存的 Embedder
func NewCachedEmbedder(inner quote.Embedder, cache *redis.Cache, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
		model: model,
		ttl:   ttl,
	}
}

// EmbedQuery 先查缓存，未命中时调用内层 Embedder 并回填
func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)

	loaded := false
	data, err := e.cache.GetOrLoadSafe(ctx, key, e.ttl, func() (interface{}, error) {
		loaded = true
		return e.inner.EmbedQuery(ctx, text)
	})
	if err != nil {
		if loaded {
			// embedding 服务本身失败
			return nil, err
		}
		// 缓存基础设施故障，降级直连
		logger.Warn(ctx, "embedding cache unavailable, falling back to direct embed", "error", err)
		metrics.EmbeddingCacheHits.WithLabelValues("error").Inc()
		return e.inner.EmbedQuery(ctx, text)
	}

	var vector []float32
	if jsonErr := json.Unmarshal(data, &vector); jsonErr != nil {
		// 缓存数据损坏：丢弃并直连
		logger.Warn(ctx, "discarding corrupt embedding cache entry", "key", key, "error", jsonErr)
		_ = e.cache.Delete(ctx, key)
		return e.inner.EmbedQuery(ctx, text)
	}

	if loaded {
		metrics.EmbeddingCacheHits.WithLabelValues("miss").Inc()
	} else {
		metrics.EmbeddingCacheHits.WithLabelValues("hit").Inc()
	}
	return vector, nil
}

// EmbedBatch 批量路径直通内层 Embedder
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return "embed:" + e.model + ":" + hex.EncodeToString(sum[:16])
}
