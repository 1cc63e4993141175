package repository

import (
	"context"
	"time"

	"carservice-commerce/internal/domain/model"
)

// SubscriptionRepository is the port for user subscriptions.
//
// Save inserts a new row and reports domain.ErrAlreadyActive when the store's
// one-active-per-user constraint rejects it. Delete reports
// domain.ErrHasDependents when payments still reference the row.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	Update(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindActiveByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// ListDue returns ACTIVE subscriptions whose end date is at or before now,
	// oldest first.
	ListDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	Delete(ctx context.Context, tx Tx, id string) error
}
