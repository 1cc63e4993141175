package repository

import (
	"context"

	"carservice-commerce/internal/domain/model"

	"github.com/shopspring/decimal"
)

// -----------------------------
// Wallets
// -----------------------------

// WalletRepository persists wallets. Lookups return domain.ErrWalletNotFound.
type WalletRepository interface {
	// Create reports domain.ErrAlreadyExists when the user already owns a wallet.
	Create(ctx context.Context, tx Tx, w *model.Wallet) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Wallet, error)
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Wallet, error)
	// UpdateBalance writes balance and bumps version to expectedVersion+1 only
	// if the stored version still equals expectedVersion; otherwise it returns
	// domain.ErrVersionConflict.
	UpdateBalance(ctx context.Context, tx Tx, id string, balance decimal.Decimal, expectedVersion int64) error
}

// -----------------------------
// Ledger transactions
// -----------------------------

// TransactionRepository is the append-only ledger. Lookups return
// domain.ErrTransactionNotFound.
type TransactionRepository interface {
	// Save inserts a row. A duplicate idempotency key for the same user or a
	// second refund of the same original both report domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, tx Tx, userID, key string) (*model.Transaction, error)
	FindRefundOf(ctx context.Context, tx Tx, originalID string) (*model.Transaction, error)
	// UpdateStatus moves a row from one status to another and returns
	// domain.ErrVersionConflict when the stored status is no longer `from`.
	UpdateStatus(ctx context.Context, tx Tx, id string, from, to model.TransactionStatus) error
	ListByWallet(ctx context.Context, tx Tx, walletID string, limit, offset int) ([]*model.Transaction, error)
	// SumApplied returns the signed sum of every applied transaction of the wallet.
	SumApplied(ctx context.Context, tx Tx, walletID string) (decimal.Decimal, error)
}
