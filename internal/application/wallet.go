package application

import (
	"context"

	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/usecase"

	"github.com/shopspring/decimal"
)

// Deposit credits the caller's wallet, creating it on first use. A replayed
// idempotency key returns the transaction committed the first time.
func (f *CommerceFacade) Deposit(ctx context.Context, amount decimal.Decimal, idempotencyKey string) (*model.Transaction, error) {
	return f.walletOp(ctx, model.TransactionDeposit, amount, idempotencyKey)
}

// Withdraw debits the caller's wallet. It never overdraws.
func (f *CommerceFacade) Withdraw(ctx context.Context, amount decimal.Decimal, idempotencyKey string) (*model.Transaction, error) {
	return f.walletOp(ctx, model.TransactionWithdrawal, amount, idempotencyKey)
}

func (f *CommerceFacade) walletOp(ctx context.Context, t model.TransactionType, amount decimal.Decimal, key string) (*model.Transaction, error) {
	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := f.ledger.Apply(ctx, usecase.ApplyRequest{
		UserID:         p.UserID,
		Type:           t,
		Amount:         amount,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}
	f.audit.Record(ctx, "wallet."+string(t), tx.ID, p.UserID)
	return tx, nil
}

// GetWallet returns the caller's wallet.
func (f *CommerceFacade) GetWallet(ctx context.Context) (*model.Wallet, error) {
	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	return f.ledger.Wallet(ctx, p.UserID)
}

// ListTransactions pages through the caller's ledger, newest first.
func (f *CommerceFacade) ListTransactions(ctx context.Context, limit, offset int) ([]*model.Transaction, error) {
	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	return f.ledger.History(ctx, p.UserID, limit, offset)
}

// RefundTransaction compensates a completed payment or withdrawal and marks
// the payment that referenced it refunded. Calling it again returns the
// existing refund and finishes any step a previous call left undone.
func (f *CommerceFacade) RefundTransaction(ctx context.Context, id, reason string) (*model.Transaction, error) {
	defer logging.TraceDuration(f.log, "CommerceFacade.RefundTransaction")()

	p, err := f.admin(ctx, "transaction.refund")
	if err != nil {
		return nil, err
	}
	meta := map[string]string{"refunded_by": p.UserID}
	if reason != "" {
		meta["reason"] = reason
	}
	refund, err := f.ledger.Refund(ctx, id, meta)
	if err != nil {
		logging.With(ctx, f.log).Warn().Err(err).Str("transaction_id", id).Msg("refund rejected")
		return nil, err
	}
	err = usecase.RunAtomic(ctx, f.tm, usecase.ReadCommitted, f.maxAttempts, "payment", func(ctx context.Context, tx repository.Tx) error {
		return f.payments.MarkRefundedByTransaction(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	f.audit.Record(ctx, "transaction.refund", refund.ID, p.UserID)
	return refund, nil
}
