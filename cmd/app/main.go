package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"carservice-commerce/internal/application"
	"carservice-commerce/internal/config"
	"carservice-commerce/internal/domain/model"
	pg "carservice-commerce/internal/infra/db/postgres"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/metrics"
	red "carservice-commerce/internal/infra/redis"
	"carservice-commerce/internal/infra/sched"
	"carservice-commerce/internal/infra/web"
	"carservice-commerce/internal/infra/worker"
	"carservice-commerce/internal/usecase"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("commerce service stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Redis (optional) ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer c.Close()
		redisClient = c
	}

	// ---- Storage ----
	st, err := openStorage(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// ---- Use cases ----
	maxAttempts := cfg.Commerce.MaxRetries
	ledger := usecase.NewLedgerService(st.wallets, st.transactions, st.tm, maxAttempts, logger)
	guard := usecase.NewCycleGuard(st.categories, st.services, cfg.Commerce.MaxCategoryDepth)
	scope := usecase.NewScopeResolver(st.services, guard)
	discounts := usecase.NewDiscountEngine(st.discounts, st.subDiscounts, st.redemptions, st.plans, scope, st.tm, maxAttempts, logger)
	lifecycle := usecase.NewSubscriptionLifecycle(st.plans, st.subscriptions, st.payments, ledger, logger)
	planUC := usecase.NewPlanUseCase(st.plans, logger)
	userUC := usecase.NewUserUseCase(st.users, st.tm, logger)

	if st.seedPlans {
		if err := seedPlans(ctx, planUC, cfg.Seed.Plans, logger); err != nil {
			return err
		}
	}

	// ---- Audit ----
	auditPool := worker.NewPool(cfg.Audit.Workers, cfg.Audit.QueueSize, logger)
	auditPool.Start(context.Background())
	defer auditPool.Stop()
	audit := worker.NewAuditSink(auditPool, st.audit, logger)

	// ---- Facade ----
	facade := application.NewCommerceFacade(application.Deps{
		TM:            st.tm,
		Users:         st.users,
		Plans:         st.plans,
		Subscriptions: st.subscriptions,
		Payments:      st.payments,
		Categories:    st.categories,
		PlanUC:        planUC,
		Ledger:        ledger,
		Discounts:     discounts,
		Lifecycle:     lifecycle,
		Guard:         guard,
		Principals:    web.ContextPrincipalResolver{},
		Audit:         audit,
		MaxAttempts:   maxAttempts,
		Currency:      cfg.Commerce.Currency,
	}, logger)

	// ---- HTTP ----
	opts := web.Options{
		RequestTimeout:     cfg.Server.RequestTimeout,
		WalletOpsPerMinute: cfg.RateLimit.WalletOpsPerMinute,
	}
	var locker red.Locker
	if redisClient != nil {
		opts.Limiter = red.NewRateLimiter(redisClient)
		locker = red.NewLocker(redisClient)
	}
	auth := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Hour)
	srv := web.NewServer(facade, auth, userUC, opts, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	renewal := sched.NewRenewalWorker(cfg.Renewal.Interval, cfg.Renewal.LockTTL, cfg.Renewal.BatchSize, facade, locker, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("driver", cfg.Database.Driver).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := renewal.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if st.pool != nil {
		g.Go(func() error {
			pg.ReportPoolStats(gctx, st.pool, 15*time.Second, logger)
			return nil
		})
	}
	return g.Wait()
}

func seedPlans(ctx context.Context, uc *usecase.PlanUseCase, seeds []config.PlanSeed, logger *zerolog.Logger) error {
	plans := make([]*model.SubscriptionPlan, 0, len(seeds))
	for _, s := range seeds {
		p, err := s.Plan()
		if err != nil {
			return err
		}
		plans = append(plans, p)
	}
	n, err := uc.EnsurePlans(ctx, plans)
	if err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}
	logger.Info().Int("created", n).Msg("plans seeded")
	return nil
}
