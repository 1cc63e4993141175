//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/usecase"
)

func seedUser(t *testing.T, id string, role model.Role) *model.User {
	t.Helper()
	u, _ := model.NewUser(id, role)
	if err := NewPostgresUserRepo(testPool).Save(context.Background(), nil, u); err != nil {
		t.Fatalf("failed to save user %s: %v", id, err)
	}
	return u
}

func TestWalletRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	wallets := NewWalletRepo(testPool)

	t.Run("should enforce one wallet per user", func(t *testing.T) {
		cleanup(t)
		seedUser(t, "alice", model.RoleUser)
		w1, _ := model.NewWallet("alice")
		w2, _ := model.NewWallet("alice")

		if err := wallets.Create(ctx, nil, w1); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := wallets.Create(ctx, nil, w2); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should reject a wallet for an unknown user", func(t *testing.T) {
		cleanup(t)
		w, _ := model.NewWallet("ghost")
		if err := wallets.Create(ctx, nil, w); !errors.Is(err, domain.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("should compare and set on version", func(t *testing.T) {
		cleanup(t)
		seedUser(t, "alice", model.RoleUser)
		w, _ := model.NewWallet("alice")
		_ = wallets.Create(ctx, nil, w)

		if err := wallets.UpdateBalance(ctx, nil, w.ID, decimal.NewFromInt(10), 0); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := wallets.UpdateBalance(ctx, nil, w.ID, decimal.NewFromInt(20), 0); !errors.Is(err, domain.ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict for a stale version, got %v", err)
		}
		got, err := wallets.FindByUser(ctx, nil, "alice")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !got.Balance.Equal(decimal.NewFromInt(10)) || got.Version != 1 {
			t.Errorf("expected balance 10 at version 1, got %s at %d", got.Balance, got.Version)
		}
	})

	t.Run("should refuse a negative balance", func(t *testing.T) {
		cleanup(t)
		seedUser(t, "alice", model.RoleUser)
		w, _ := model.NewWallet("alice")
		_ = wallets.Create(ctx, nil, w)
		if err := wallets.UpdateBalance(ctx, nil, w.ID, decimal.NewFromInt(-1), 0); !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("should return ErrWalletNotFound", func(t *testing.T) {
		cleanup(t)
		if _, err := wallets.FindByUser(ctx, nil, "nobody"); !errors.Is(err, domain.ErrWalletNotFound) {
			t.Errorf("expected ErrWalletNotFound, got %v", err)
		}
	})
}

func TestTransactionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	wallets := NewWalletRepo(testPool)
	txs := NewTransactionRepo(testPool)

	setup := func(t *testing.T) *model.Wallet {
		cleanup(t)
		seedUser(t, "alice", model.RoleUser)
		w, _ := model.NewWallet("alice")
		if err := wallets.Create(ctx, nil, w); err != nil {
			t.Fatalf("failed to create wallet: %v", err)
		}
		return w
	}
	newTx := func(w *model.Wallet, typ model.TransactionType, amount int64, status model.TransactionStatus) *model.Transaction {
		return &model.Transaction{
			ID:        ulid.Make().String(),
			WalletID:  &w.ID,
			UserID:    w.UserID,
			Type:      typ,
			Amount:    decimal.NewFromInt(amount),
			Status:    status,
			Metadata:  map[string]string{"source": "test"},
			CreatedAt: time.Now().UTC(),
		}
	}

	t.Run("should round trip metadata and enforce idempotency keys", func(t *testing.T) {
		w := setup(t)
		key := "k-1"
		first := newTx(w, model.TransactionDeposit, 50, model.TransactionCompleted)
		first.IdempotencyKey = &key
		if err := txs.Save(ctx, nil, first); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		dup := newTx(w, model.TransactionDeposit, 50, model.TransactionCompleted)
		dup.IdempotencyKey = &key
		if err := txs.Save(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		got, err := txs.FindByIdempotencyKey(ctx, nil, "alice", key)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.ID != first.ID || got.Metadata["source"] != "test" {
			t.Errorf("unexpected row: %+v", got)
		}
	})

	t.Run("should allow one refund per original", func(t *testing.T) {
		w := setup(t)
		orig := newTx(w, model.TransactionWithdrawal, 10, model.TransactionCompleted)
		_ = txs.Save(ctx, nil, newTx(w, model.TransactionDeposit, 10, model.TransactionCompleted))
		_ = txs.Save(ctx, nil, orig)

		r1 := newTx(w, model.TransactionRefund, 10, model.TransactionCompleted)
		r1.OriginalTransactionID = &orig.ID
		r2 := newTx(w, model.TransactionRefund, 10, model.TransactionCompleted)
		r2.OriginalTransactionID = &orig.ID

		if err := txs.Save(ctx, nil, r1); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := txs.Save(ctx, nil, r2); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		got, err := txs.FindRefundOf(ctx, nil, orig.ID)
		if err != nil || got.ID != r1.ID {
			t.Errorf("expected refund %s, got %+v, %v", r1.ID, got, err)
		}
	})

	t.Run("should move status only from the expected one", func(t *testing.T) {
		w := setup(t)
		row := newTx(w, model.TransactionDeposit, 5, model.TransactionCompleted)
		_ = txs.Save(ctx, nil, row)

		if err := txs.UpdateStatus(ctx, nil, row.ID, model.TransactionCompleted, model.TransactionRefunded); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if err := txs.UpdateStatus(ctx, nil, row.ID, model.TransactionCompleted, model.TransactionRefunded); !errors.Is(err, domain.ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("should sum applied rows and list newest first", func(t *testing.T) {
		w := setup(t)
		_ = txs.Save(ctx, nil, newTx(w, model.TransactionDeposit, 100, model.TransactionCompleted))
		_ = txs.Save(ctx, nil, newTx(w, model.TransactionWithdrawal, 30, model.TransactionCompleted))
		_ = txs.Save(ctx, nil, newTx(w, model.TransactionPayment, 20, model.TransactionRefunded))
		_ = txs.Save(ctx, nil, newTx(w, model.TransactionRefund, 20, model.TransactionCompleted))
		_ = txs.Save(ctx, nil, newTx(w, model.TransactionPayment, 999, model.TransactionFailed))

		sum, err := txs.SumApplied(ctx, nil, w.ID)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !sum.Equal(decimal.NewFromInt(70)) {
			t.Errorf("expected 70, got %s", sum)
		}

		page, err := txs.ListByWallet(ctx, nil, w.ID, 2, 0)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if len(page) != 2 || page[0].ID < page[1].ID {
			t.Errorf("expected two rows newest first, got %d", len(page))
		}
	})
}

func TestLedger_Postgres_ConcurrentWithdrawals(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	cleanup(t)
	ctx := context.Background()
	logger := zerolog.Nop()
	seedUser(t, "alice", model.RoleUser)
	ledger := usecase.NewLedgerService(NewWalletRepo(testPool), NewTransactionRepo(testPool), NewTxManager(testPool), 5, &logger)

	if _, err := ledger.Apply(ctx, usecase.ApplyRequest{UserID: "alice", Type: model.TransactionDeposit, Amount: decimal.NewFromInt(50)}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, short, contended int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Apply(ctx, usecase.ApplyRequest{UserID: "alice", Type: model.TransactionWithdrawal, Amount: decimal.NewFromInt(10)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientFunds):
				short++
			case errors.Is(err, domain.ErrConcurrentModification):
				contended++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	w, err := ledger.Wallet(ctx, "alice")
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if w.Balance.IsNegative() {
		t.Fatalf("balance went negative: %s", w.Balance)
	}
	if !w.Balance.Equal(decimal.NewFromInt(int64(50 - 10*ok))) {
		t.Errorf("balance %s does not match %d successful withdrawals", w.Balance, ok)
	}
	stored, computed, err := ledger.Reconcile(ctx, w.ID)
	if err != nil || !stored.Equal(computed) {
		t.Errorf("ledger out of balance: stored=%s computed=%s err=%v", stored, computed, err)
	}
	if ok > 5 || ok+short+contended != n {
		t.Errorf("unexpected outcome split: ok=%d short=%d contended=%d", ok, short, contended)
	}
}
