package usecase

import (
	"context"
	"errors"
	"time"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ApplyRequest describes one ledger write. UserID identifies the wallet
// owner; WalletID, when set, pins a specific wallet.
type ApplyRequest struct {
	WalletID       string
	UserID         string
	Type           model.TransactionType
	Amount         decimal.Decimal
	IdempotencyKey string
	Metadata       map[string]string
	// Direct records a wallet-less transaction settled outside the platform.
	Direct bool
}

// LedgerService keeps wallet balances and the transaction log in lockstep.
// Every balance change is a version-checked conditional write paired with
// exactly one appended Transaction in the same atomic unit.
type LedgerService struct {
	wallets     repository.WalletRepository
	txs         repository.TransactionRepository
	tm          repository.TransactionManager
	maxAttempts int
	log         *zerolog.Logger
	now         func() time.Time
}

func NewLedgerService(wallets repository.WalletRepository, txs repository.TransactionRepository, tm repository.TransactionManager, maxAttempts int, logger *zerolog.Logger) *LedgerService {
	return &LedgerService{
		wallets:     wallets,
		txs:         txs,
		tm:          tm,
		maxAttempts: ClampAttempts(maxAttempts),
		log:         logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Apply runs ApplyTx in its own atomic unit with optimistic retry.
func (l *LedgerService) Apply(ctx context.Context, req ApplyRequest) (*model.Transaction, error) {
	defer logging.TraceDuration(l.log, "LedgerService.Apply")()

	var out *model.Transaction
	err := RunAtomic(ctx, l.tm, ReadCommitted, l.maxAttempts, "wallet", func(ctx context.Context, tx repository.Tx) error {
		t, err := l.ApplyTx(ctx, tx, req)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		metrics.IncLedgerTransaction(string(req.Type), "rejected")
		l.logReject(ctx, err, req)
		return nil, err
	}
	l.Observe(out)
	return out, nil
}

// ApplyTx performs the read-modify-write inside the caller's unit. A stale
// wallet version surfaces as domain.ErrVersionConflict; the caller decides
// whether to re-run the unit.
func (l *LedgerService) ApplyTx(ctx context.Context, tx repository.Tx, req ApplyRequest) (*model.Transaction, error) {
	if !req.Type.Valid() || req.Type == model.TransactionRefund {
		return nil, domain.ErrInvalidArgument
	}
	if !req.Amount.IsPositive() || !model.IsMoney(req.Amount) {
		return nil, domain.ErrInvalidAmount
	}
	if req.UserID == "" && req.WalletID == "" {
		return nil, domain.ErrMissingUser
	}

	if req.IdempotencyKey != "" && req.UserID != "" {
		prev, err := l.txs.FindByIdempotencyKey(ctx, tx, req.UserID, req.IdempotencyKey)
		switch {
		case err == nil:
			if prev.Type != req.Type || !prev.Amount.Equal(req.Amount) {
				return nil, domain.ErrAlreadyExists
			}
			return prev, nil
		case !errors.Is(err, domain.ErrTransactionNotFound):
			return nil, err
		}
	}

	if req.Direct {
		if req.Type != model.TransactionPayment {
			return nil, domain.ErrInvalidArgument
		}
		t := l.newTransaction(nil, req.UserID, req.Type, req.Amount, model.TransactionCompleted)
		t.IdempotencyKey = optional(req.IdempotencyKey)
		t.Metadata = req.Metadata
		if err := l.save(ctx, tx, t); err != nil {
			return nil, err
		}
		return t, nil
	}

	w, err := l.resolveWallet(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	balance, err := w.Applied(req.Type, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := l.wallets.UpdateBalance(ctx, tx, w.ID, balance, w.Version); err != nil {
		return nil, err
	}

	t := l.newTransaction(&w.ID, w.UserID, req.Type, req.Amount, model.TransactionCompleted)
	t.IdempotencyKey = optional(req.IdempotencyKey)
	t.Metadata = req.Metadata
	if err := l.save(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordFailureTx appends a failed transaction without touching the balance.
// It documents a rejected debit, e.g. an unpaid renewal.
func (l *LedgerService) RecordFailureTx(ctx context.Context, tx repository.Tx, walletID *string, userID string, t model.TransactionType, amount decimal.Decimal, metadata map[string]string) (*model.Transaction, error) {
	row := l.newTransaction(walletID, userID, t, amount, model.TransactionFailed)
	row.Metadata = metadata
	if err := l.txs.Save(ctx, tx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Refund compensates a completed payment or withdrawal. It runs as two
// atomic units: the refund row plus the credit first, then the refunded
// mark on the original. A crash between them leaves the original completed
// and a retry finishes the second step. Refunds are idempotent by the
// original transaction id.
func (l *LedgerService) Refund(ctx context.Context, originalID string, metadata map[string]string) (*model.Transaction, error) {
	defer logging.TraceDuration(l.log, "LedgerService.Refund")()

	var refund *model.Transaction
	err := RunAtomic(ctx, l.tm, ReadCommitted, l.maxAttempts, "wallet", func(ctx context.Context, tx repository.Tx) error {
		r, err := l.RefundTx(ctx, tx, originalID, metadata)
		if err != nil {
			return err
		}
		refund = r
		return nil
	})
	if err != nil {
		metrics.IncLedgerTransaction(string(model.TransactionRefund), "rejected")
		return nil, err
	}

	err = RunAtomic(ctx, l.tm, ReadCommitted, l.maxAttempts, "transaction", func(ctx context.Context, tx repository.Tx) error {
		return l.MarkRefundedTx(ctx, tx, originalID)
	})
	if err != nil {
		return nil, err
	}
	l.Observe(refund)
	return refund, nil
}

// RefundTx writes the refund row and credits the wallet of the original.
// When a refund already exists it is returned unchanged.
func (l *LedgerService) RefundTx(ctx context.Context, tx repository.Tx, originalID string, metadata map[string]string) (*model.Transaction, error) {
	if prev, err := l.txs.FindRefundOf(ctx, tx, originalID); err == nil {
		return prev, nil
	} else if !errors.Is(err, domain.ErrTransactionNotFound) {
		return nil, err
	}

	orig, err := l.txs.FindByID(ctx, tx, originalID)
	if err != nil {
		return nil, err
	}
	if !orig.Refundable() {
		if orig.Status.Terminal() {
			return nil, domain.ErrTransactionSettled
		}
		return nil, domain.ErrNotRefundable
	}

	if orig.WalletID != nil {
		w, err := l.wallets.FindByID(ctx, tx, *orig.WalletID)
		if err != nil {
			return nil, err
		}
		balance, err := w.Applied(model.TransactionRefund, orig.Amount)
		if err != nil {
			return nil, err
		}
		if err := l.wallets.UpdateBalance(ctx, tx, w.ID, balance, w.Version); err != nil {
			return nil, err
		}
	}

	refund := l.newTransaction(orig.WalletID, orig.UserID, model.TransactionRefund, orig.Amount, model.TransactionCompleted)
	refund.OriginalTransactionID = &orig.ID
	refund.Metadata = metadata
	if err := l.save(ctx, tx, refund); err != nil {
		return nil, err
	}
	return refund, nil
}

// MarkRefundedTx flips the original to refunded once its refund exists.
func (l *LedgerService) MarkRefundedTx(ctx context.Context, tx repository.Tx, originalID string) error {
	if _, err := l.txs.FindRefundOf(ctx, tx, originalID); err != nil {
		return err
	}
	orig, err := l.txs.FindByID(ctx, tx, originalID)
	if err != nil {
		return err
	}
	if orig.Status == model.TransactionRefunded {
		return nil
	}
	return l.txs.UpdateStatus(ctx, tx, orig.ID, model.TransactionCompleted, model.TransactionRefunded)
}

// Wallet returns the caller's wallet.
func (l *LedgerService) Wallet(ctx context.Context, userID string) (*model.Wallet, error) {
	defer logging.TraceDuration(l.log, "LedgerService.Wallet")()
	return l.wallets.FindByUser(ctx, repository.NoTX, userID)
}

// History lists the wallet's transactions, newest first.
func (l *LedgerService) History(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, error) {
	defer logging.TraceDuration(l.log, "LedgerService.History")()
	w, err := l.wallets.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.txs.ListByWallet(ctx, repository.NoTX, w.ID, limit, offset)
}

// Reconcile returns the stored balance next to the balance recomputed from
// the ledger. They differ only if something bypassed the ledger.
func (l *LedgerService) Reconcile(ctx context.Context, walletID string) (stored, computed decimal.Decimal, err error) {
	err = l.tm.WithTx(ctx, ReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		w, err := l.wallets.FindByID(ctx, tx, walletID)
		if err != nil {
			return err
		}
		sum, err := l.txs.SumApplied(ctx, tx, walletID)
		if err != nil {
			return err
		}
		stored, computed = w.Balance, sum
		return nil
	})
	return stored, computed, err
}

// Observe records metrics for a committed transaction.
func (l *LedgerService) Observe(t *model.Transaction) {
	if t == nil {
		return
	}
	metrics.IncLedgerTransaction(string(t.Type), string(t.Status))
	if t.Status == model.TransactionCompleted {
		f, _ := t.Amount.Float64()
		metrics.AddLedgerAmount(string(t.Type), f)
	}
}

func (l *LedgerService) resolveWallet(ctx context.Context, tx repository.Tx, req ApplyRequest) (*model.Wallet, error) {
	if req.WalletID != "" {
		w, err := l.wallets.FindByID(ctx, tx, req.WalletID)
		if err != nil {
			return nil, err
		}
		if req.UserID != "" && w.UserID != req.UserID {
			return nil, domain.ErrForbidden
		}
		return w, nil
	}

	w, err := l.wallets.FindByUser(ctx, tx, req.UserID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) || req.Type != model.TransactionDeposit {
		return nil, err
	}

	// First funding event creates the wallet.
	w, err = model.NewWallet(req.UserID)
	if err != nil {
		return nil, err
	}
	if err := l.wallets.Create(ctx, tx, w); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, domain.ErrVersionConflict
		}
		return nil, err
	}
	l.log.Debug().Str("user_id", req.UserID).Str("wallet_id", w.ID).Msg("wallet created")
	return w, nil
}

// save appends t. A unique violation means a concurrent unit wrote the same
// idempotency key or refund first; re-running the unit returns that row.
func (l *LedgerService) save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if err := l.txs.Save(ctx, tx, t); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.ErrVersionConflict
		}
		return err
	}
	return nil
}

func (l *LedgerService) newTransaction(walletID *string, userID string, t model.TransactionType, amount decimal.Decimal, status model.TransactionStatus) *model.Transaction {
	now := l.now()
	return &model.Transaction{
		ID:        ulid.Make().String(),
		WalletID:  walletID,
		UserID:    userID,
		Type:      t,
		Amount:    amount,
		Status:    status,
		CreatedAt: now,
	}
}

func (l *LedgerService) logReject(ctx context.Context, err error, req ApplyRequest) {
	lg := logging.With(ctx, l.log)
	switch domain.KindOf(err) {
	case domain.KindInternal, domain.KindTransient:
		lg.Error().Err(err).Str("type", string(req.Type)).Msg("ledger write failed")
	default:
		lg.Warn().Err(err).Str("type", string(req.Type)).Str("amount", req.Amount.String()).Msg("ledger write rejected")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
