package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"carservice-commerce/internal/config"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/infra/db/postgres"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/redis"
	"carservice-commerce/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
)

// This script is for setting up a clean, predictable database state
// for manual end-to-end testing.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()
	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("e2e setup needs database.driver=postgres, got %q", cfg.Database.Driver)
	}

	// --- Connect to Postgres ---
	pool, err := postgres.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clean the Redis cache to remove any stale data.
	log.Println("[1/4] Wiping Redis cache...")
	if cfg.Redis.URL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisClient.Close()
		if err := redisClient.FlushDB(ctx); err != nil {
			log.Fatalf("failed to flush redis: %v", err)
		}
	}

	// 2. Clean the database completely.
	log.Println("[2/4] Wiping all existing database data...")
	if err := postgres.Truncate(ctx, pool); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. Seed the configured plans.
	log.Println("[3/4] Seeding plans...")
	logger := logging.New(cfg.Log, true)
	planUC := usecase.NewPlanUseCase(postgres.NewPostgresPlanRepo(pool), logger)
	plans := make([]*model.SubscriptionPlan, 0, len(cfg.Seed.Plans))
	for _, s := range cfg.Seed.Plans {
		p, err := s.Plan()
		if err != nil {
			log.Fatalf("%v", err)
		}
		plans = append(plans, p)
	}
	if _, err := planUC.EnsurePlans(ctx, plans); err != nil {
		log.Fatalf("seed plans: %v", err)
	}

	// 4. A small catalog with one scoped discount code.
	log.Println("[4/4] Seeding catalog and a WELCOME10 discount...")
	seedCatalog(ctx, pool)

	log.Println("--- ✅ E2E Environment Setup Complete ---")
}

// seedCatalog creates Maintenance > Engine > Oil change, and a 10% code
// scoped to Maintenance.
func seedCatalog(ctx context.Context, pool *pgxpool.Pool) {
	categories := postgres.NewCategoryRepo(pool)
	services := postgres.NewServiceRepo(pool)
	discounts := postgres.NewDiscountRepo(pool)

	root, _ := model.NewCategory("Maintenance", "maintenance", nil, 0)
	engine, _ := model.NewCategory("Engine", "engine", &root.ID, 0)
	for _, c := range []*model.Category{root, engine} {
		if err := categories.Create(ctx, nil, c); err != nil {
			log.Fatalf("failed to save category %s: %v", c.Slug, err)
		}
	}

	oil := &model.Service{ID: "oil-change", CategoryID: engine.ID, Name: "Oil change"}
	if err := services.Save(ctx, nil, oil); err != nil {
		log.Fatalf("failed to save service: %v", err)
	}

	now := time.Now().UTC()
	welcome := &model.Discount{
		ID:   "welcome10",
		Code: "WELCOME10",
		DiscountTerms: model.DiscountTerms{
			Type:      model.DiscountPercentage,
			Value:     decimal.NewFromInt(10),
			StartDate: now.Add(-time.Hour),
			EndDate:   now.AddDate(0, 3, 0),
			IsActive:  true,
		},
		CategoryIDs: []string{root.ID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := discounts.Create(ctx, nil, welcome); err != nil {
		log.Fatalf("failed to save discount: %v", err)
	}
}
