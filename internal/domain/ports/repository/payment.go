package repository

import (
	"context"

	"carservice-commerce/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string) ([]*model.Payment, error)
	CountBySubscription(ctx context.Context, tx Tx, subscriptionID string) (int, error)
	// MarkRefundedByTransaction flips the payment settled by transactionID to
	// refunded. It is a no-op when no payment references the transaction.
	MarkRefundedByTransaction(ctx context.Context, tx Tx, transactionID string) error
}
