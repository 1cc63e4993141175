package postgres

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	red "carservice-commerce/internal/infra/redis"
)

var _ repository.SubscriptionPlanRepository = (*planRepoCacheDecorator)(nil)

const planListKey = "plans:all"

func planKey(id string) string { return "plan:" + id }

// planRepoCacheDecorator caches plan reads in Redis. Prices are part of the
// cached row, so every Save drops both the row and the list.
type planRepoCacheDecorator struct {
	inner repository.SubscriptionPlanRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPlanRepoCacheDecorator(inner repository.SubscriptionPlanRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SubscriptionPlanRepository {
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: cacheTTL(ttl), log: logger}
}

func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	if err := d.cache.Del(ctx, planKey(plan.ID), planListKey); err != nil {
		d.log.Warn().Err(err).Str("plan_id", plan.ID).Msg("plan cache invalidation failed")
	}
	return d.inner.Save(ctx, tx, plan)
}

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	return readThrough(ctx, d.cache, d.log, "plan", planKey(id), d.ttl,
		func() (*model.SubscriptionPlan, error) { return d.inner.FindByID(ctx, tx, id) },
		nil,
	)
}

// ListAll caches only non-empty catalogs so a fresh install picks up seeded plans.
func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	return readThrough(ctx, d.cache, d.log, "plan_list", planListKey, d.ttl,
		func() ([]*model.SubscriptionPlan, error) { return d.inner.ListAll(ctx, tx) },
		func(plans []*model.SubscriptionPlan) bool { return len(plans) > 0 },
	)
}
