package postgres

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/metrics"
	red "carservice-commerce/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

func userKey(id string) string { return "user:id:" + id }

// userRepoCacheDecorator caches user lookups. Users are never updated in
// place, so a cached row can only go stale by not existing yet.
type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration) repository.UserRepository {
	nop := zerolog.Nop()
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: cacheTTL(ttl), log: &nop}
}

func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	_ = d.cache.Del(ctx, userKey(u.ID))
	return d.inner.Save(ctx, tx, u)
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return readThrough(ctx, d.cache, d.log, "user", userKey(id), d.ttl,
		func() (*model.User, error) { return d.inner.FindByID(ctx, tx, id) },
		nil,
	)
}

// Exists only trusts positive cache entries.
func (d *userRepoCacheDecorator) Exists(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	if _, err := d.cache.Get(ctx, userKey(id)); err == nil {
		metrics.IncCacheRequest("user", "hit")
		return true, nil
	}
	metrics.IncCacheRequest("user", "miss")
	return d.inner.Exists(ctx, tx, id)
}
