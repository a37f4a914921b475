// Package cache decorates the query embedder with a shared cache.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/metrics"
	"github.com/oral-history/backend/pkg/logger"
	"github.com/oral-history/backend/pkg/utils"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Backend is satisfied by the redis client.
type Backend interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float64, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float64, ttl time.Duration) error
}

// EmbeddingCache serves repeated query embeddings from Backend. Cache errors
// are logged and fall through to the wrapped embedder.
type EmbeddingCache struct {
	next    Embedder
	backend Backend
	model   string
	ttl     time.Duration
}

func NewEmbeddingCache(next Embedder, backend Backend, model string, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{next: next, backend: backend, model: model, ttl: ttl}
}

func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float64, error) {
	key := utils.HashKey(c.model, text)

	if emb, ok, err := c.backend.GetEmbedding(ctx, key); err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	} else if ok && len(emb) > 0 {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return emb, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	emb, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.backend.SetEmbedding(ctx, key, emb, c.ttl); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return emb, nil
}
