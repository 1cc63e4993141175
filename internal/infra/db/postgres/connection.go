package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"carservice-commerce/internal/config"
	"carservice-commerce/internal/infra/metrics"
)

// NewPgxPool parses the configured URL, applies pool limits and pings.
func NewPgxPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// ReportPoolStats publishes pool gauges every interval until ctx is done.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, interval time.Duration, logger *zerolog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("pool stats reporter stopped")
			return
		case <-t.C:
			s := pool.Stat()
			metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
		}
	}
}

// commerceTables is every table in deploy/postgres/init.sql, children first.
var commerceTables = []string{
	"audit_logs", "discount_redemptions", "discount_services", "discount_categories",
	"discounts", "subscription_discounts", "payments", "subscriptions", "transactions",
	"wallets", "services", "categories", "subscription_plans", "users",
}

// Truncate empties every commerce table. Used by the e2e reset tool and
// integration tests, never by the service.
func Truncate(ctx context.Context, pool *pgxpool.Pool) error {
	q := "TRUNCATE " + strings.Join(commerceTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
