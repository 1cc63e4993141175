//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/db/memory"
	"carservice-commerce/internal/usecase"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptrInt(n int64) *int64 { return &n }

func ptrDec(s string) *decimal.Decimal { d := dec(s); return &d }

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock TxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Conflicting decorators ----

// conflictingWallets fails the first `failures` balance writes with a version
// conflict, as if another request had committed in between.
type conflictingWallets struct {
	repository.WalletRepository
	failures int64
	calls    atomic.Int64
}

func (c *conflictingWallets) UpdateBalance(ctx context.Context, tx repository.Tx, id string, balance decimal.Decimal, expectedVersion int64) error {
	if c.calls.Add(1) <= c.failures {
		return domain.ErrVersionConflict
	}
	return c.WalletRepository.UpdateBalance(ctx, tx, id, balance, expectedVersion)
}

// conflictingDiscounts does the same for usage increments.
type conflictingDiscounts struct {
	repository.DiscountRepository
	failures int64
	calls    atomic.Int64
}

func (c *conflictingDiscounts) IncrementUses(ctx context.Context, tx repository.Tx, id string, expectedVersion int64) error {
	if c.calls.Add(1) <= c.failures {
		return domain.ErrVersionConflict
	}
	return c.DiscountRepository.IncrementUses(ctx, tx, id, expectedVersion)
}

// -----------------------------
// Fixture
// -----------------------------

type fixture struct {
	store     *memory.Store
	ledger    *usecase.LedgerService
	guard     *usecase.CycleGuard
	scope     *usecase.ScopeResolver
	discounts *usecase.DiscountEngine
	lifecycle *usecase.SubscriptionLifecycle
	clock     *testClock
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixtureOpts struct {
	wallets   repository.WalletRepository
	discounts repository.DiscountRepository
}

func newFixture(t *testing.T, opts ...func(*fixtureOpts, *memory.Store)) *fixture {
	t.Helper()
	store := memory.NewStore()
	o := &fixtureOpts{wallets: store.Wallets(), discounts: store.Discounts()}
	for _, fn := range opts {
		fn(o, store)
	}
	logger := newTestLogger()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	ledger := usecase.NewLedgerService(o.wallets, store.Transactions(), store, usecase.DefaultMaxAttempts, logger)
	guard := usecase.NewCycleGuard(store.Categories(), store.Services(), model.MaxCategoryDepth)
	scope := usecase.NewScopeResolver(store.Services(), guard)
	engine := usecase.NewDiscountEngine(o.discounts, store.SubscriptionDiscounts(), store.Redemptions(), store.Plans(), scope, store, usecase.DefaultMaxAttempts, logger)
	lifecycle := usecase.NewSubscriptionLifecycle(store.Plans(), store.Subscriptions(), store.Payments(), ledger, logger).
		WithClock(clock.Now)

	return &fixture{
		store:     store,
		ledger:    ledger,
		guard:     guard,
		scope:     scope,
		discounts: engine,
		lifecycle: lifecycle,
		clock:     clock,
	}
}

func (f *fixture) seedPlan(t *testing.T, id, price string, days int) *model.SubscriptionPlan {
	t.Helper()
	p, err := model.NewSubscriptionPlan(id, "plan "+id, dec(price), days, []string{"priority_booking"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if err := f.store.Plans().Save(context.Background(), repository.NoTX, p); err != nil {
		t.Fatalf("save plan: %v", err)
	}
	return p
}

func (f *fixture) seedCategory(t *testing.T, slug string, parent *model.Category) *model.Category {
	t.Helper()
	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}
	c, err := model.NewCategory(slug, slug, parentID, 0)
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	if err := f.store.Categories().Create(context.Background(), repository.NoTX, c); err != nil {
		t.Fatalf("save category: %v", err)
	}
	return c
}

func (f *fixture) seedService(t *testing.T, id string, c *model.Category) *model.Service {
	t.Helper()
	s := &model.Service{ID: id, CategoryID: c.ID, Name: id}
	if err := f.store.Services().Save(context.Background(), repository.NoTX, s); err != nil {
		t.Fatalf("save service: %v", err)
	}
	return s
}

func (f *fixture) fund(t *testing.T, userID, amount string) *model.Wallet {
	t.Helper()
	ctx := context.Background()
	if _, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: userID, Type: model.TransactionDeposit, Amount: dec(amount)}); err != nil {
		t.Fatalf("fund %s: %v", userID, err)
	}
	w, err := f.store.Wallets().FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	return w
}

func (f *fixture) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	w, err := f.store.Wallets().FindByUser(context.Background(), repository.NoTX, userID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	return w.Balance
}

// activate runs ActivateTx the way the facade does.
func (f *fixture) activate(ctx context.Context, userID string, plan *model.SubscriptionPlan, autoRenew bool) (*model.Subscription, *model.Payment, error) {
	var sub *model.Subscription
	var pay *model.Payment
	err := usecase.RunAtomic(ctx, f.store, usecase.Serializable, usecase.DefaultMaxAttempts, "subscription", func(ctx context.Context, tx repository.Tx) error {
		s, p, err := f.lifecycle.ActivateTx(ctx, tx, usecase.ActivateRequest{
			UserID:    userID,
			Plan:      plan,
			AutoRenew: autoRenew,
			Amount:    plan.Price,
			Method:    model.PaymentMethodWallet,
		})
		if err != nil {
			return err
		}
		sub, pay = s, p
		return nil
	})
	return sub, pay, err
}
