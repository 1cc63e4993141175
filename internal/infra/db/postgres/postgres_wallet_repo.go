package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

var (
	_ repository.WalletRepository      = (*walletRepo)(nil)
	_ repository.TransactionRepository = (*transactionRepo)(nil)
)

// -----------------------------
// Wallets
// -----------------------------

type walletRepo struct{ pool *pgxpool.Pool }

func NewWalletRepo(pool *pgxpool.Pool) *walletRepo {
	return &walletRepo{pool: pool}
}

const walletColumns = `id, user_id, balance, version, created_at, updated_at`

func (r *walletRepo) Create(ctx context.Context, tx repository.Tx, w *model.Wallet) error {
	const q = `INSERT INTO wallets (` + walletColumns + `) VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, w.ID, w.UserID, w.Balance, w.Version, w.CreatedAt, w.UpdatedAt)
	return constraintErr(err, map[string]error{
		"wallets_user_id_key":  domain.ErrAlreadyExists,
		"wallets_user_id_fkey": domain.ErrUserNotFound,
	})
}

func (r *walletRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Wallet, error) {
	return r.queryOne(ctx, tx, forUpdate(`SELECT `+walletColumns+` FROM wallets WHERE id=$1`, tx), id)
}

func (r *walletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	return r.queryOne(ctx, tx, forUpdate(`SELECT `+walletColumns+` FROM wallets WHERE user_id=$1`, tx), userID)
}

// UpdateBalance is a compare-and-set on version. The balance CHECK is the
// last line against an overdraft that slipped past the ledger.
func (r *walletRepo) UpdateBalance(ctx context.Context, tx repository.Tx, id string, balance decimal.Decimal, expectedVersion int64) error {
	const q = `
UPDATE wallets
   SET balance=$2, version=version+1, updated_at=$4
 WHERE id=$1 AND version=$3;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, balance, expectedVersion, time.Now().UTC())
	if err != nil {
		return constraintErr(err, map[string]error{"wallets_balance_check": domain.ErrInsufficientFunds})
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *walletRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Wallet, error) {
	row, err := pickRow(ctx, r.pool, tx, q+";", args...)
	if err != nil {
		return nil, err
	}
	var w model.Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, scanErr(err, domain.ErrWalletNotFound)
	}
	return &w, nil
}

// -----------------------------
// Ledger transactions
// -----------------------------

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const transactionColumns = `id, wallet_id, user_id, type, amount, status, original_transaction_id, idempotency_key, metadata, created_at`

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	meta := t.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `INSERT INTO transactions (` + transactionColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.WalletID, t.UserID, string(t.Type), t.Amount, string(t.Status),
		t.OriginalTransactionID, t.IdempotencyKey, raw, t.CreatedAt)
	return constraintErr(err, map[string]error{
		"transactions_wallet_id_fkey":               domain.ErrWalletNotFound,
		"transactions_original_transaction_id_fkey": domain.ErrTransactionNotFound,
	})
}

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	return r.queryOne(ctx, tx, forUpdate(`SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, tx), id)
}

func (r *transactionRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, userID, key string) (*model.Transaction, error) {
	return r.queryOne(ctx, tx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id=$1 AND idempotency_key=$2`, userID, key)
}

func (r *transactionRepo) FindRefundOf(ctx context.Context, tx repository.Tx, originalID string) (*model.Transaction, error) {
	return r.queryOne(ctx, tx, `SELECT `+transactionColumns+` FROM transactions WHERE original_transaction_id=$1`, originalID)
}

func (r *transactionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.TransactionStatus) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE transactions SET status=$3 WHERE id=$1 AND status=$2;`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// ListByWallet pages newest first. ULIDs sort by creation time.
func (r *transactionRepo) ListByWallet(ctx context.Context, tx repository.Tx, walletID string, limit, offset int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const q = `
SELECT ` + transactionColumns + `
  FROM transactions
 WHERE wallet_id=$1
 ORDER BY id DESC
 LIMIT $2 OFFSET $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, t)
	}
	return out, translate(rows.Err())
}

func (r *transactionRepo) SumApplied(ctx context.Context, tx repository.Tx, walletID string) (decimal.Decimal, error) {
	const q = `
SELECT COALESCE(SUM(CASE WHEN type IN ('deposit','refund') THEN amount ELSE -amount END), 0)
  FROM transactions
 WHERE wallet_id=$1 AND status IN ('completed','refunded');`
	row, err := pickRow(ctx, r.pool, tx, q, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, translate(err)
	}
	return sum, nil
}

func (r *transactionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Transaction, error) {
	row, err := pickRow(ctx, r.pool, tx, q+";", args...)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrTransactionNotFound)
	}
	return t, nil
}

func scanTransaction(row interface{ Scan(dest ...interface{}) error }) (*model.Transaction, error) {
	var t model.Transaction
	var typ, status string
	var raw []byte
	if err := row.Scan(&t.ID, &t.WalletID, &t.UserID, &typ, &t.Amount, &status,
		&t.OriginalTransactionID, &t.IdempotencyKey, &raw, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Type = model.TransactionType(typ)
	t.Status = model.TransactionStatus(status)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.Metadata); err != nil {
			return nil, err
		}
	}
	if len(t.Metadata) == 0 {
		t.Metadata = nil
	}
	return &t, nil
}
