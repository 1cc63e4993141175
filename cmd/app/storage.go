package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"carservice-commerce/internal/config"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/db/memory"
	pg "carservice-commerce/internal/infra/db/postgres"
	red "carservice-commerce/internal/infra/redis"
)

// storage bundles the repositories of one backend.
type storage struct {
	tm            repository.TransactionManager
	users         repository.UserRepository
	plans         repository.SubscriptionPlanRepository
	subscriptions repository.SubscriptionRepository
	payments      repository.PaymentRepository
	wallets       repository.WalletRepository
	transactions  repository.TransactionRepository
	discounts     repository.DiscountRepository
	subDiscounts  repository.SubscriptionDiscountRepository
	redemptions   repository.RedemptionRepository
	categories    repository.CategoryRepository
	services      repository.ServiceRepository
	audit         repository.AuditRepository

	pool      *pgxpool.Pool // nil for the memory store
	seedPlans bool
	close     func()
}

func openStorage(ctx context.Context, cfg *config.Config, cache *red.Client, logger *zerolog.Logger) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("using the in-memory store; data is lost on exit")
		s := memory.NewStore()
		return &storage{
			tm:            s,
			users:         s.Users(),
			plans:         s.Plans(),
			subscriptions: s.Subscriptions(),
			payments:      s.Payments(),
			wallets:       s.Wallets(),
			transactions:  s.Transactions(),
			discounts:     s.Discounts(),
			subDiscounts:  s.SubscriptionDiscounts(),
			redemptions:   s.Redemptions(),
			categories:    s.Categories(),
			services:      s.Services(),
			audit:         s.Audit(),
			seedPlans:     true,
			close:         func() {},
		}, nil
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	var (
		users repository.UserRepository             = pg.NewPostgresUserRepo(pool)
		plans repository.SubscriptionPlanRepository = pg.NewPostgresPlanRepo(pool)
	)
	if cache != nil {
		users = pg.NewUserRepoCacheDecorator(users, cache, cfg.Redis.TTL)
		plans = pg.NewPlanRepoCacheDecorator(plans, cache, cfg.Redis.TTL, logger)
	}
	return &storage{
		tm:            pg.NewTxManager(pool),
		users:         users,
		plans:         plans,
		subscriptions: pg.NewSubscriptionRepo(pool),
		payments:      pg.NewPaymentRepo(pool),
		wallets:       pg.NewWalletRepo(pool),
		transactions:  pg.NewTransactionRepo(pool),
		discounts:     pg.NewDiscountRepo(pool),
		subDiscounts:  pg.NewSubscriptionDiscountRepo(pool),
		redemptions:   pg.NewRedemptionRepo(pool),
		categories:    pg.NewCategoryRepo(pool),
		services:      pg.NewServiceRepo(pool),
		audit:         pg.NewAuditRepo(pool),
		pool:          pool,
		close:         pool.Close,
	}, nil
}
