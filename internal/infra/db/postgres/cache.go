package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"carservice-commerce/internal/infra/metrics"
	red "carservice-commerce/internal/infra/redis"
)

// readThrough serves key from the cache when it decodes, otherwise calls load
// and stores the result. Cache failures never fail the read. keep decides
// whether a loaded value is worth caching.
func readThrough[T any](ctx context.Context, cache red.RedisClient, log *zerolog.Logger, kind, key string, ttl time.Duration, load func() (T, error), keep func(T) bool) (T, error) {
	val, err := cache.Get(ctx, key)
	switch {
	case err == nil:
		var out T
		if json.Unmarshal([]byte(val), &out) == nil {
			metrics.IncCacheRequest(kind, "hit")
			return out, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest(kind, "miss")
	out, err := load()
	if err != nil {
		return out, err
	}
	if keep == nil || keep(out) {
		if b, err := json.Marshal(out); err == nil {
			if err := cache.Set(ctx, key, b, ttl); err != nil {
				log.Debug().Err(err).Str("key", key).Msg("cache write failed")
			}
		}
	}
	return out, nil
}

func cacheTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Hour
	}
	return ttl
}
