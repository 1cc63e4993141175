//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"carservice-commerce/internal/application"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/db/memory"
	"carservice-commerce/internal/usecase"
)

// ---- fakes ----

type fakeLimiter struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[key]++
	return f.calls[key] <= limit, nil
}

type testServer struct {
	store   *memory.Store
	auth    *AuthManager
	handler http.Handler
}

func newTestServer(t *testing.T, limiter Limiter) *testServer {
	t.Helper()
	store := memory.NewStore()
	logger := zerolog.New(io.Discard)

	ledger := usecase.NewLedgerService(store.Wallets(), store.Transactions(), store, 4, &logger)
	guard := usecase.NewCycleGuard(store.Categories(), store.Services(), model.MaxCategoryDepth)
	scope := usecase.NewScopeResolver(store.Services(), guard)
	engine := usecase.NewDiscountEngine(store.Discounts(), store.SubscriptionDiscounts(), store.Redemptions(), store.Plans(), scope, store, 4, &logger)
	lifecycle := usecase.NewSubscriptionLifecycle(store.Plans(), store.Subscriptions(), store.Payments(), ledger, &logger)

	facade := application.NewCommerceFacade(application.Deps{
		TM:            store,
		Users:         store.Users(),
		Plans:         store.Plans(),
		Subscriptions: store.Subscriptions(),
		Payments:      store.Payments(),
		Categories:    store.Categories(),
		PlanUC:        usecase.NewPlanUseCase(store.Plans(), &logger),
		Ledger:        ledger,
		Discounts:     engine,
		Lifecycle:     lifecycle,
		Guard:         guard,
		Principals:    ContextPrincipalResolver{},
		MaxAttempts:   4,
	}, &logger)

	plan, _ := model.NewSubscriptionPlan("gold", "Gold", decimal.RequireFromString("30"), 30, []string{"priority_booking"})
	if err := store.Plans().Save(context.Background(), repository.NoTX, plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	auth := NewAuthManager("test-secret", "carservice", time.Hour)
	users := usecase.NewUserUseCase(store.Users(), store, &logger)
	srv := NewServer(facade, auth, users, Options{WalletOpsPerMinute: 2, Limiter: limiter}, &logger)
	return &testServer{store: store, auth: auth, handler: srv.Routes()}
}

func (ts *testServer) do(t *testing.T, method, path, userID string, role model.Role, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if userID != "" {
		tok, err := ts.auth.Mint(userID, role)
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorBody](t, rec).Error.Code
}

// ---- tests ----

func TestServer_Auth(t *testing.T) {
	t.Run("should reject a request without a bearer token", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/api/v1/wallet", "", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "unauthenticated" {
			t.Errorf("expected unauthenticated, got %q", code)
		}
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		ts := newTestServer(t, nil)
		other := NewAuthManager("other-secret", "carservice", time.Hour)
		tok, _ := other.Mint("alice", model.RoleUser)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("should register the caller on first request", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/api/v1/plans", "alice", model.RoleUser, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		ok, err := ts.store.Users().Exists(context.Background(), repository.NoTX, "alice")
		if err != nil || !ok {
			t.Errorf("expected alice registered, got %v %v", ok, err)
		}
	})

	t.Run("should forbid admin routes to a plain user", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodPost, "/api/v1/categories", "alice", model.RoleUser, map[string]any{"name": "Engine", "slug": "engine"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("should leave health and metrics open", func(t *testing.T) {
		ts := newTestServer(t, nil)
		if rec := ts.do(t, http.MethodGet, "/health", "", "", nil); rec.Code != http.StatusOK {
			t.Errorf("expected 200 on /health, got %d", rec.Code)
		}
		if rec := ts.do(t, http.MethodGet, "/metrics", "", "", nil); rec.Code != http.StatusOK {
			t.Errorf("expected 200 on /metrics, got %d", rec.Code)
		}
	})
}

func TestServer_Wallet(t *testing.T) {
	t.Run("should deposit, withdraw and list newest first", func(t *testing.T) {
		// --- Arrange ---
		ts := newTestServer(t, nil)

		// --- Act ---
		dep := ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "100.50"})
		wd := ts.do(t, http.MethodPost, "/api/v1/wallet/withdraw", "alice", model.RoleUser, map[string]string{"amount": "40"})
		wal := ts.do(t, http.MethodGet, "/api/v1/wallet", "alice", model.RoleUser, nil)
		list := ts.do(t, http.MethodGet, "/api/v1/wallet/transactions?limit=10", "alice", model.RoleUser, nil)

		// --- Assert ---
		if dep.Code != http.StatusOK || wd.Code != http.StatusOK {
			t.Fatalf("expected 200s, got %d %d: %s", dep.Code, wd.Code, wd.Body.String())
		}
		w := decodeBody[walletView](t, wal)
		if !w.Balance.Equal(decimal.RequireFromString("60.50")) {
			t.Errorf("expected balance 60.50, got %s", w.Balance)
		}
		txs := decodeBody[listResponse[transactionView]](t, list)
		if len(txs.Data) != 2 || txs.Data[0].Type != "withdrawal" {
			t.Errorf("expected withdrawal first, got %+v", txs.Data)
		}
	})

	t.Run("should refuse an overdraft with 400 insufficient_funds", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "10"})

		rec := ts.do(t, http.MethodPost, "/api/v1/wallet/withdraw", "alice", model.RoleUser, map[string]string{"amount": "10.01"})

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "insufficient_funds" {
			t.Errorf("expected insufficient_funds, got %q", code)
		}
	})

	t.Run("should replay a deposit with the same idempotency key", func(t *testing.T) {
		ts := newTestServer(t, nil)
		first := ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "25"}, "Idempotency-Key", "dep-1")
		second := ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "25"}, "Idempotency-Key", "dep-1")

		a, b := decodeBody[transactionView](t, first), decodeBody[transactionView](t, second)
		if a.ID != b.ID {
			t.Errorf("expected the same transaction, got %s and %s", a.ID, b.ID)
		}
		w := decodeBody[walletView](t, ts.do(t, http.MethodGet, "/api/v1/wallet", "alice", model.RoleUser, nil))
		if !w.Balance.Equal(decimal.RequireFromString("25")) {
			t.Errorf("expected a single credit, got %s", w.Balance)
		}
	})

	t.Run("should reject unknown fields and bad paging", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "5", "currency": "EUR"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown field, got %d", rec.Code)
		}
		rec = ts.do(t, http.MethodGet, "/api/v1/wallet/transactions?limit=-1", "alice", model.RoleUser, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for negative limit, got %d", rec.Code)
		}
	})

	t.Run("should rate limit wallet operations per user", func(t *testing.T) {
		// --- Arrange ---
		lim := &fakeLimiter{}
		ts := newTestServer(t, lim)

		// --- Act ---
		var codes []int
		for i := 0; i < 3; i++ {
			rec := ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "1"})
			codes = append(codes, rec.Code)
		}
		other := ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "bob", model.RoleUser, map[string]string{"amount": "1"})

		// --- Assert ---
		if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
			t.Errorf("expected 200,200,429, got %v", codes)
		}
		if other.Code != http.StatusOK {
			t.Errorf("expected bob unaffected, got %d", other.Code)
		}
	})

	t.Run("should let requests through when the limiter fails", func(t *testing.T) {
		ts := newTestServer(t, &fakeLimiter{err: errors.New("redis down")})
		rec := ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "1"})
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestServer_Subscriptions(t *testing.T) {
	t.Run("should buy a plan with a code and refuse a second active one", func(t *testing.T) {
		// --- Arrange ---
		ts := newTestServer(t, nil)
		ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "100"})
		now := time.Now().UTC()
		rec := ts.do(t, http.MethodPost, "/api/v1/subscription-discounts", "root", model.RoleAdmin, map[string]any{
			"code": "HALF", "plan_id": "gold", "type": "percentage", "value": "50", "max_uses": 1,
			"start_date": now.Add(-time.Hour), "end_date": now.Add(time.Hour),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 creating discount, got %d: %s", rec.Code, rec.Body.String())
		}

		// --- Act ---
		buy := ts.do(t, http.MethodPost, "/api/v1/subscriptions", "alice", model.RoleUser,
			map[string]any{"plan_id": "gold", "discount_code": "half", "method": "wallet"})
		again := ts.do(t, http.MethodPost, "/api/v1/subscriptions", "alice", model.RoleUser,
			map[string]any{"plan_id": "gold", "method": "wallet"})

		// --- Assert ---
		if buy.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", buy.Code, buy.Body.String())
		}
		rc := decodeBody[receiptView](t, buy)
		if !rc.Payment.Amount.Equal(decimal.RequireFromString("15")) || rc.Subscription.Status != "ACTIVE" {
			t.Errorf("unexpected receipt: %+v %+v", rc.Payment, rc.Subscription)
		}
		if again.Code != http.StatusBadRequest || errorCode(t, again) != "already_active" {
			t.Errorf("expected 400 already_active, got %d %s", again.Code, again.Body.String())
		}
		w := decodeBody[walletView](t, ts.do(t, http.MethodGet, "/api/v1/wallet", "alice", model.RoleUser, nil))
		if !w.Balance.Equal(decimal.RequireFromString("85")) {
			t.Errorf("expected 85 left, got %s", w.Balance)
		}
	})

	t.Run("should return 404 when no subscription is active", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/api/v1/subscriptions/active", "alice", model.RoleUser, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("should cancel and then refuse a hard delete by a user", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "30"})
		rc := decodeBody[receiptView](t, ts.do(t, http.MethodPost, "/api/v1/subscriptions", "alice", model.RoleUser,
			map[string]any{"plan_id": "gold", "method": "wallet"}))

		cancel := ts.do(t, http.MethodDelete, "/api/v1/subscriptions/"+rc.Subscription.ID, "alice", model.RoleUser, nil)
		del := ts.do(t, http.MethodDelete, "/api/v1/admin/subscriptions/"+rc.Subscription.ID, "alice", model.RoleUser, nil)

		if cancel.Code != http.StatusOK || decodeBody[subscriptionView](t, cancel).Status != "CANCELLED" {
			t.Errorf("expected CANCELLED, got %d %s", cancel.Code, cancel.Body.String())
		}
		if del.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", del.Code)
		}
	})
}

func TestServer_Catalog(t *testing.T) {
	t.Run("should refuse to move a category under its own descendant", func(t *testing.T) {
		// --- Arrange ---
		ts := newTestServer(t, nil)
		root := decodeBody[categoryView](t, ts.do(t, http.MethodPost, "/api/v1/categories", "root", model.RoleAdmin,
			map[string]any{"name": "Engine", "slug": "engine"}))
		child := decodeBody[categoryView](t, ts.do(t, http.MethodPost, "/api/v1/categories", "root", model.RoleAdmin,
			map[string]any{"name": "Oil", "slug": "oil", "parent_id": root.ID}))

		// --- Act ---
		rec := ts.do(t, http.MethodPatch, "/api/v1/categories/"+root.ID, "root", model.RoleAdmin, map[string]any{"parent_id": child.ID})
		chain := ts.do(t, http.MethodGet, "/api/v1/categories/"+child.ID+"/ancestors", "alice", model.RoleUser, nil)

		// --- Assert ---
		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "circular_reference" {
			t.Errorf("expected 400 circular_reference, got %d %s", rec.Code, rec.Body.String())
		}
		got := decodeBody[listResponse[categoryView]](t, chain)
		if len(got.Data) != 2 || got.Data[1].ID != root.ID {
			t.Errorf("expected child then root, got %+v", got.Data)
		}
	})

	t.Run("should refuse to delete a category with children", func(t *testing.T) {
		ts := newTestServer(t, nil)
		root := decodeBody[categoryView](t, ts.do(t, http.MethodPost, "/api/v1/categories", "root", model.RoleAdmin,
			map[string]any{"name": "Body", "slug": "body"}))
		ts.do(t, http.MethodPost, "/api/v1/categories", "root", model.RoleAdmin,
			map[string]any{"name": "Paint", "slug": "paint", "parent_id": root.ID})

		rec := ts.do(t, http.MethodDelete, "/api/v1/categories/"+root.ID, "root", model.RoleAdmin, nil)

		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "has_dependents" {
			t.Errorf("expected 400 has_dependents, got %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("should quote without consuming and redeem once for a capped code", func(t *testing.T) {
		// --- Arrange ---
		ts := newTestServer(t, nil)
		now := time.Now().UTC()
		rec := ts.do(t, http.MethodPost, "/api/v1/discounts", "root", model.RoleAdmin, map[string]any{
			"code": "ONCE", "type": "fixed", "value": "20", "max_uses": 1,
			"start_date": now.Add(-time.Hour), "end_date": now.Add(time.Hour),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		// --- Act ---
		q1 := ts.do(t, http.MethodGet, "/api/v1/discounts/ONCE/quote?amount=50", "alice", model.RoleUser, nil)
		q2 := ts.do(t, http.MethodGet, "/api/v1/discounts/ONCE/quote?amount=50", "alice", model.RoleUser, nil)
		r1 := ts.do(t, http.MethodPost, "/api/v1/discounts/ONCE/redeem", "alice", model.RoleUser, map[string]string{"amount": "50"})
		r2 := ts.do(t, http.MethodPost, "/api/v1/discounts/ONCE/redeem", "bob", model.RoleUser, map[string]string{"amount": "50"})

		// --- Assert ---
		if q1.Code != http.StatusOK || q2.Code != http.StatusOK {
			t.Fatalf("expected quotes to succeed, got %d %d", q1.Code, q2.Code)
		}
		if got := decodeBody[discountResultView](t, r1); !got.DiscountedAmount.Equal(decimal.RequireFromString("30")) {
			t.Errorf("expected 30, got %s", got.DiscountedAmount)
		}
		if r2.Code != http.StatusBadRequest || errorCode(t, r2) != "code_exhausted" {
			t.Errorf("expected 400 code_exhausted, got %d %s", r2.Code, r2.Body.String())
		}
	})

	t.Run("should answer 404 for an unknown code", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/api/v1/discounts/NOPE/quote?amount=10", "alice", model.RoleUser, nil)
		if rec.Code != http.StatusNotFound || errorCode(t, rec) != "code_not_found" {
			t.Errorf("expected 404 code_not_found, got %d %s", rec.Code, rec.Body.String())
		}
	})
}

func TestServer_Refund(t *testing.T) {
	t.Run("should refund a withdrawal once and restore the balance", func(t *testing.T) {
		// --- Arrange ---
		ts := newTestServer(t, nil)
		ts.do(t, http.MethodPost, "/api/v1/wallet/deposit", "alice", model.RoleUser, map[string]string{"amount": "50"})
		wd := decodeBody[transactionView](t, ts.do(t, http.MethodPost, "/api/v1/wallet/withdraw", "alice", model.RoleUser, map[string]string{"amount": "20"}))

		// --- Act ---
		first := ts.do(t, http.MethodPost, "/api/v1/transactions/"+wd.ID+"/refund", "root", model.RoleAdmin, map[string]string{"reason": "duplicate"})
		second := ts.do(t, http.MethodPost, "/api/v1/transactions/"+wd.ID+"/refund", "root", model.RoleAdmin, nil)
		denied := ts.do(t, http.MethodPost, "/api/v1/transactions/"+wd.ID+"/refund", "alice", model.RoleUser, nil)

		// --- Assert ---
		if first.Code != http.StatusOK || second.Code != http.StatusOK {
			t.Fatalf("expected 200s, got %d %d: %s", first.Code, second.Code, second.Body.String())
		}
		if a, b := decodeBody[transactionView](t, first), decodeBody[transactionView](t, second); a.ID != b.ID || a.Type != "refund" {
			t.Errorf("expected one refund, got %+v %+v", a, b)
		}
		if denied.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", denied.Code)
		}
		w := decodeBody[walletView](t, ts.do(t, http.MethodGet, "/api/v1/wallet", "alice", model.RoleUser, nil))
		if !w.Balance.Equal(decimal.RequireFromString("50")) {
			t.Errorf("expected 50, got %s", w.Balance)
		}
	})
}

func TestWriteError(t *testing.T) {
	t.Run("should hide internal messages", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, errors.New("pq: connection refused at 10.0.0.3"))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "10.0.0.3") {
			t.Errorf("leaked internal detail: %s", rec.Body.String())
		}
	})
}
