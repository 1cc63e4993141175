package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"carservice-commerce/internal/config"
	"carservice-commerce/internal/domain/model"
	pg "carservice-commerce/internal/infra/db/postgres"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/web"
	"carservice-commerce/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	tokenUser := flag.String("token-user", "", "also print a bearer token for this user id")
	tokenRole := flag.String("token-role", string(model.RoleUser), "role for -token-user: USER, PROVIDER or ADMIN")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed token")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	if *tokenUser != "" {
		role := model.Role(*tokenRole)
		if !role.Valid() {
			log.Fatalf("unknown role %q", *tokenRole)
		}
		tok, err := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *tokenTTL).Mint(*tokenUser, role)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		fmt.Printf("Authorization: Bearer %s\n", tok)
	}

	if cfg.Database.Driver != "postgres" {
		fmt.Println("database.driver is not postgres; the app seeds the in-memory store itself.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	planUC := usecase.NewPlanUseCase(pg.NewPostgresPlanRepo(pool), logger)

	plans := make([]*model.SubscriptionPlan, 0, len(cfg.Seed.Plans))
	for _, s := range cfg.Seed.Plans {
		p, err := s.Plan()
		if err != nil {
			log.Fatalf("%v", err)
		}
		plans = append(plans, p)
	}
	n, err := planUC.EnsurePlans(ctx, plans)
	if err != nil {
		log.Fatalf("seed plans: %v", err)
	}

	all, err := planUC.List(ctx)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	fmt.Printf("%d plans created, %d present:\n", n, len(all))
	for _, p := range all {
		fmt.Printf("  - %s %q (days=%d, price=%s %s)\n", p.ID, p.Name, p.DurationDays, p.Price.StringFixed(2), cfg.Commerce.Currency)
	}
}
