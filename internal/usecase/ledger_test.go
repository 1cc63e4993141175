//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/db/memory"
	"carservice-commerce/internal/usecase"
)

func TestLedgerService_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("should create the wallet lazily on first deposit", func(t *testing.T) {
		// --- Arrange ---
		f := newFixture(t)

		// --- Act ---
		tx, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionDeposit, Amount: dec("25.50")})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if tx.Status != model.TransactionCompleted || tx.WalletID == nil {
			t.Fatalf("unexpected transaction %+v", tx)
		}
		if got := f.balance(t, "u1"); !got.Equal(dec("25.50")) {
			t.Errorf("expected balance 25.50, got %s", got)
		}
	})

	t.Run("should not create a wallet for a debit", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionWithdrawal, Amount: dec("1")})
		if !errors.Is(err, domain.ErrWalletNotFound) {
			t.Fatalf("expected ErrWalletNotFound, got %v", err)
		}
	})

	t.Run("should reject an overdraft without writing anything", func(t *testing.T) {
		f := newFixture(t)
		w := f.fund(t, "u1", "10")

		_, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionWithdrawal, Amount: dec("10.01")})
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		txs, _ := f.store.Transactions().ListByWallet(ctx, repository.NoTX, w.ID, 10, 0)
		if len(txs) != 1 {
			t.Errorf("expected only the funding transaction, got %d rows", len(txs))
		}
	})

	t.Run("should reject invalid input", func(t *testing.T) {
		f := newFixture(t)
		cases := []usecase.ApplyRequest{
			{UserID: "u1", Type: model.TransactionDeposit, Amount: dec("0")},
			{UserID: "u1", Type: model.TransactionDeposit, Amount: dec("-5")},
			{UserID: "u1", Type: model.TransactionRefund, Amount: dec("5")},
			{UserID: "u1", Type: "bonus", Amount: dec("5")},
			{Type: model.TransactionDeposit, Amount: dec("5")},
		}
		for _, req := range cases {
			if _, err := f.ledger.Apply(ctx, req); domain.KindOf(err) != domain.KindValidation {
				t.Errorf("%+v: expected a validation error, got %v", req, err)
			}
		}
	})

	t.Run("should reject amounts finer than a cent", func(t *testing.T) {
		// --- Arrange ---
		f := newFixture(t)
		f.fund(t, "u1", "10")

		// --- Act ---
		_, depErr := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionDeposit, Amount: dec("0.005")})
		_, wdErr := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionWithdrawal, Amount: dec("1.999")})
		_, okErr := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionDeposit, Amount: dec("0.500")})

		// --- Assert ---
		if !errors.Is(depErr, domain.ErrInvalidAmount) || !errors.Is(wdErr, domain.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v and %v", depErr, wdErr)
		}
		if okErr != nil {
			t.Fatalf("expected trailing zeros to be accepted, got %v", okErr)
		}
		if got := f.balance(t, "u1"); !got.Equal(dec("10.5")) {
			t.Errorf("expected balance 10.50, got %s", got)
		}
	})

	t.Run("should replay an idempotency key instead of applying twice", func(t *testing.T) {
		f := newFixture(t)
		req := usecase.ApplyRequest{UserID: "u1", Type: model.TransactionDeposit, Amount: dec("40"), IdempotencyKey: "req-1"}

		first, err := f.ledger.Apply(ctx, req)
		if err != nil {
			t.Fatalf("first apply: %v", err)
		}
		second, err := f.ledger.Apply(ctx, req)
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("expected replay to return %s, got %s", first.ID, second.ID)
		}
		if got := f.balance(t, "u1"); !got.Equal(dec("40")) {
			t.Errorf("expected balance 40 after replay, got %s", got)
		}

		req.Amount = dec("41")
		if _, err := f.ledger.Apply(ctx, req); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists for a reused key with a different amount, got %v", err)
		}
	})

	t.Run("should record a direct payment without a wallet", func(t *testing.T) {
		f := newFixture(t)
		tx, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionPayment, Amount: dec("9.99"), Direct: true})
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if tx.WalletID != nil {
			t.Error("direct payment must not reference a wallet")
		}
	})
}

func TestLedgerService_OptimisticRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("should retry a stale version and then succeed", func(t *testing.T) {
		var flaky *conflictingWallets
		f := newFixture(t, func(o *fixtureOpts, s *memory.Store) {
			flaky = &conflictingWallets{WalletRepository: s.Wallets(), failures: 2}
			o.wallets = flaky
		})

		_, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionDeposit, Amount: dec("5")})
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if got := flaky.calls.Load(); got != 3 {
			t.Errorf("expected 3 balance writes, got %d", got)
		}
		if got := f.balance(t, "u1"); !got.Equal(dec("5")) {
			t.Errorf("rolled back attempts must not leave partial state, balance %s", got)
		}
	})

	t.Run("should surface ConcurrentModification after the retry budget", func(t *testing.T) {
		f := newFixture(t, func(o *fixtureOpts, s *memory.Store) {
			o.wallets = &conflictingWallets{WalletRepository: s.Wallets(), failures: 100}
		})

		_, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionDeposit, Amount: dec("5")})
		if !errors.Is(err, domain.ErrConcurrentModification) {
			t.Fatalf("expected ErrConcurrentModification, got %v", err)
		}
		if _, err := f.store.Wallets().FindByUser(ctx, repository.NoTX, "u1"); !errors.Is(err, domain.ErrWalletNotFound) {
			t.Errorf("expected the lazily created wallet to be rolled back, got %v", err)
		}
	})
}

func TestLedgerService_Refund(t *testing.T) {
	ctx := context.Background()

	t.Run("should credit the wallet and mark the original refunded", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "u1", "100")
		pay, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionPayment, Amount: dec("30")})
		if err != nil {
			t.Fatalf("payment: %v", err)
		}

		refund, err := f.ledger.Refund(ctx, pay.ID, nil)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if refund.Type != model.TransactionRefund || *refund.OriginalTransactionID != pay.ID {
			t.Fatalf("unexpected refund %+v", refund)
		}
		if got := f.balance(t, "u1"); !got.Equal(dec("100")) {
			t.Errorf("expected balance restored to 100, got %s", got)
		}
		orig, _ := f.store.Transactions().FindByID(ctx, repository.NoTX, pay.ID)
		if orig.Status != model.TransactionRefunded {
			t.Errorf("expected original to be refunded, got %s", orig.Status)
		}

		again, err := f.ledger.Refund(ctx, pay.ID, nil)
		if err != nil {
			t.Fatalf("second refund should be idempotent, got %v", err)
		}
		if again.ID != refund.ID {
			t.Errorf("expected the same refund row, got %s and %s", refund.ID, again.ID)
		}
		if got := f.balance(t, "u1"); !got.Equal(dec("100")) {
			t.Errorf("second refund must not credit again, balance %s", got)
		}
	})

	t.Run("should finish the second step when a prior attempt stopped halfway", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "u1", "50")
		pay, _ := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionPayment, Amount: dec("20")})

		// Only the first unit committed.
		err := f.store.WithTx(ctx, usecase.ReadCommitted, func(ctx context.Context, tx repository.Tx) error {
			_, err := f.ledger.RefundTx(ctx, tx, pay.ID, nil)
			return err
		})
		if err != nil {
			t.Fatalf("refund step: %v", err)
		}
		orig, _ := f.store.Transactions().FindByID(ctx, repository.NoTX, pay.ID)
		if orig.Status != model.TransactionCompleted {
			t.Fatalf("expected original still completed, got %s", orig.Status)
		}

		if _, err := f.ledger.Refund(ctx, pay.ID, nil); err != nil {
			t.Fatalf("retry: %v", err)
		}
		orig, _ = f.store.Transactions().FindByID(ctx, repository.NoTX, pay.ID)
		if orig.Status != model.TransactionRefunded {
			t.Errorf("expected refunded after retry, got %s", orig.Status)
		}
		if got := f.balance(t, "u1"); !got.Equal(dec("50")) {
			t.Errorf("expected exactly one credit, balance %s", got)
		}
	})

	t.Run("should refuse deposits and unknown ids", func(t *testing.T) {
		f := newFixture(t)
		f.fund(t, "u1", "50")
		w, _ := f.store.Wallets().FindByUser(ctx, repository.NoTX, "u1")
		txs, _ := f.store.Transactions().ListByWallet(ctx, repository.NoTX, w.ID, 1, 0)

		if _, err := f.ledger.Refund(ctx, txs[0].ID, nil); !errors.Is(err, domain.ErrNotRefundable) {
			t.Errorf("expected ErrNotRefundable for a deposit, got %v", err)
		}
		if _, err := f.ledger.Refund(ctx, "missing", nil); !errors.Is(err, domain.ErrTransactionNotFound) {
			t.Errorf("expected ErrTransactionNotFound, got %v", err)
		}
	})
}

// Balance must equal the signed sum of applied transactions after any
// sequence of operations.
func TestLedgerService_BalanceConservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.fund(t, "u1", "100")
	rng := rand.New(rand.NewSource(42))

	var debits []string
	for i := 0; i < 200; i++ {
		amount := decimal.New(int64(100+rng.Intn(900)), -2) // 1.00 .. 9.99
		switch rng.Intn(4) {
		case 0:
			f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionDeposit, Amount: amount})
		case 1:
			if tx, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionWithdrawal, Amount: amount}); err == nil {
				debits = append(debits, tx.ID)
			}
		case 2:
			if tx, err := f.ledger.Apply(ctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionPayment, Amount: amount}); err == nil {
				debits = append(debits, tx.ID)
			}
		case 3:
			if len(debits) > 0 {
				f.ledger.Refund(ctx, debits[rng.Intn(len(debits))], nil)
			}
		}

		stored, computed, err := f.ledger.Reconcile(ctx, w.ID)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if !stored.Equal(computed) {
			t.Fatalf("step %d: balance %s diverged from ledger sum %s", i, stored, computed)
		}
		if stored.IsNegative() {
			t.Fatalf("step %d: negative balance %s", i, stored)
		}
	}
}

func TestLedgerService_ConcurrentWithdrawals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "u1", "100")

	const N = 25 // each takes 10, only 10 can fit
	var mu sync.Mutex
	var ok, insufficient int
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < N; i++ {
		g.Go(func() error {
			_, err := f.ledger.Apply(gctx, usecase.ApplyRequest{UserID: "u1", Type: model.TransactionWithdrawal, Amount: dec("10")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientFunds):
				insufficient++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ok != 10 || insufficient != N-10 {
		t.Fatalf("expected 10 successes and %d rejections, got %d and %d", N-10, ok, insufficient)
	}
	if got := f.balance(t, "u1"); !got.IsZero() {
		t.Errorf("expected zero balance, got %s", got)
	}
}
