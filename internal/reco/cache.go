package reco

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedEmbedder fronts an Embedder with a Redis cache keyed by the context
// text hash. Repeated requests with the same gift context skip the provider
// call entirely. Cache failures degrade to the inner embedder.
type CachedEmbedder struct {
	inner  Embedder
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder wraps the embedder. A nil client disables caching.
func NewCachedEmbedder(inner Embedder, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Model returns the inner embedder's model name.
func (e *CachedEmbedder) Model() string {
	return e.inner.Model()
}

// Embed returns the cached vector for the text when present, otherwise calls
// the provider and stores the result.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.cache == nil {
		return e.inner.Embed(ctx, text)
	}

	key := e.cacheKey(text)

	cached, err := e.cache.Get(ctx, key).Result()
	if err == nil {
		var vector []float64
		if err := json.Unmarshal([]byte(cached), &vector); err == nil && len(vector) > 0 {
			return vector, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		e.logger.WarnContext(ctx, "embedding cache read failed",
			slog.String("error", err.Error()),
		)
	}

	vector, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(vector); err == nil {
		if err := e.cache.Set(ctx, key, encoded, e.ttl).Err(); err != nil {
			e.logger.WarnContext(ctx, "embedding cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return vector, nil
}

func (e *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "reco:ctxvec:" + e.inner.Model() + ":" + hex.EncodeToString(sum[:])
}
