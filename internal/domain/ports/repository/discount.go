package repository

import (
	"context"

	"carservice-commerce/internal/domain/model"
)

// DiscountRepository persists service/category discounts. Codes are stored
// normalized. FindByCode and FindByID return domain.ErrCodeNotFound.
type DiscountRepository interface {
	// Create and Update report domain.ErrDuplicateCode on a code collision.
	Create(ctx context.Context, tx Tx, d *model.Discount) error
	// Update is version-checked against d.Version and bumps it.
	Update(ctx context.Context, tx Tx, d *model.Discount) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Discount, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Discount, error)
	// IncrementUses adds one use if the row version still equals
	// expectedVersion, else returns domain.ErrVersionConflict.
	IncrementUses(ctx context.Context, tx Tx, id string, expectedVersion int64) error
}

// SubscriptionDiscountRepository mirrors DiscountRepository for plan-bound codes.
type SubscriptionDiscountRepository interface {
	Create(ctx context.Context, tx Tx, d *model.SubscriptionDiscount) error
	Update(ctx context.Context, tx Tx, d *model.SubscriptionDiscount) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.SubscriptionDiscount, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.SubscriptionDiscount, error)
	IncrementUses(ctx context.Context, tx Tx, id string, expectedVersion int64) error
}

// RedemptionRepository appends one row per successful use of a code.
type RedemptionRepository interface {
	Save(ctx context.Context, tx Tx, r *model.Redemption) error
	ListByDiscount(ctx context.Context, tx Tx, discountID string) ([]*model.Redemption, error)
}
