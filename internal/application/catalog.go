package application

import (
	"context"
	"strings"
	"time"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/metrics"
	"carservice-commerce/internal/usecase"
)

// -----------------------------
// Categories
// -----------------------------

// CategoryInput creates a category.
type CategoryInput struct {
	Name     string
	Slug     string
	ParentID *string
	Order    int
}

// CategoryPatch updates a category; nil leaves a field unchanged.
// ParentID pointing at "" moves the category to the root level.
type CategoryPatch struct {
	Name     *string
	Slug     *string
	Order    *int
	ParentID *string
}

// CreateCategory stores a new category under an existing parent.
func (f *CommerceFacade) CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error) {
	defer logging.TraceDuration(f.log, "CommerceFacade.CreateCategory")()

	p, err := f.admin(ctx, "category.create")
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil && *in.ParentID == "" {
		in.ParentID = nil
	}
	c, err := model.NewCategory(in.Name, in.Slug, in.ParentID, in.Order)
	if err != nil {
		metrics.IncCategoryMutation("create", "invalid")
		return nil, err
	}
	err = usecase.RunAtomic(ctx, f.tm, usecase.Serializable, f.maxAttempts, "category", func(ctx context.Context, tx repository.Tx) error {
		if c.ParentID != nil {
			if err := f.guard.CheckReparent(ctx, tx, c.ID, *c.ParentID); err != nil {
				return err
			}
		}
		return f.categories.Create(ctx, tx, c)
	})
	observeCategory("create", err)
	if err != nil {
		return nil, err
	}
	f.audit.Record(ctx, "category.create", c.ID, p.UserID)
	return c, nil
}

// UpdateCategory applies patch. A parent change is validated by the cycle
// guard inside the same serializable unit as the write.
func (f *CommerceFacade) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (*model.Category, error) {
	defer logging.TraceDuration(f.log, "CommerceFacade.UpdateCategory")()

	p, err := f.admin(ctx, "category.update")
	if err != nil {
		return nil, err
	}
	var out *model.Category
	err = usecase.RunAtomic(ctx, f.tm, usecase.Serializable, f.maxAttempts, "category", func(ctx context.Context, tx repository.Tx) error {
		cur, err := f.categories.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		next := *cur
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
			if next.Name == "" {
				return domain.ErrInvalidArgument
			}
		}
		if patch.Slug != nil {
			next.Slug = model.NormalizeSlug(*patch.Slug)
			if next.Slug == "" {
				return domain.ErrInvalidArgument
			}
		}
		if patch.Order != nil {
			next.Order = *patch.Order
		}
		if patch.ParentID != nil {
			if err := f.guard.CheckReparent(ctx, tx, id, *patch.ParentID); err != nil {
				return err
			}
			next.ParentID = nil
			if *patch.ParentID != "" {
				parent := *patch.ParentID
				next.ParentID = &parent
			}
		}
		next.UpdatedAt = time.Now().UTC()
		if err := f.categories.Update(ctx, tx, &next); err != nil {
			return err
		}
		out = &next
		return nil
	})
	op := "update"
	if patch.ParentID != nil {
		op = "reparent"
	}
	observeCategory(op, err)
	if err != nil {
		logging.With(ctx, f.log).Warn().Err(err).Str("category_id", id).Msg("category update rejected")
		return nil, err
	}
	f.audit.Record(ctx, "category."+op, id, p.UserID)
	return out, nil
}

// ReparentCategory moves id under newParentID, or to the root level when
// newParentID is empty.
func (f *CommerceFacade) ReparentCategory(ctx context.Context, id, newParentID string) (*model.Category, error) {
	return f.UpdateCategory(ctx, id, CategoryPatch{ParentID: &newParentID})
}

// DeleteCategory removes a leaf category with no services.
func (f *CommerceFacade) DeleteCategory(ctx context.Context, id string) error {
	defer logging.TraceDuration(f.log, "CommerceFacade.DeleteCategory")()

	p, err := f.admin(ctx, "category.delete")
	if err != nil {
		return err
	}
	err = usecase.RunAtomic(ctx, f.tm, usecase.Serializable, f.maxAttempts, "category", func(ctx context.Context, tx repository.Tx) error {
		if err := f.guard.CheckDeletable(ctx, tx, id); err != nil {
			return err
		}
		return f.categories.Delete(ctx, tx, id)
	})
	observeCategory("delete", err)
	if err != nil {
		return err
	}
	f.audit.Record(ctx, "category.delete", id, p.UserID)
	return nil
}

// CategoryAncestors returns the category followed by its ancestors.
func (f *CommerceFacade) CategoryAncestors(ctx context.Context, id string) ([]*model.Category, error) {
	if _, err := f.principal(ctx); err != nil {
		return nil, err
	}
	var chain []*model.Category
	err := f.tm.WithTx(ctx, usecase.ReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		var err error
		chain, err = f.guard.Chain(ctx, tx, id)
		return err
	})
	return chain, err
}

func observeCategory(op string, err error) {
	if err == nil {
		metrics.IncCategoryMutation(op, "ok")
		return
	}
	metrics.IncCategoryMutation(op, domain.AsError(err).Code)
}

// -----------------------------
// Discounts
// -----------------------------

func (f *CommerceFacade) CreateDiscount(ctx context.Context, d *model.Discount) (*model.Discount, error) {
	p, err := f.admin(ctx, "discount.create")
	if err != nil {
		return nil, err
	}
	out, err := f.discounts.CreateDiscount(ctx, d)
	if err != nil {
		return nil, err
	}
	f.audit.Record(ctx, "discount.create", out.ID, p.UserID)
	return out, nil
}

func (f *CommerceFacade) UpdateDiscount(ctx context.Context, id string, patch usecase.DiscountPatch) (*model.Discount, error) {
	p, err := f.admin(ctx, "discount.update")
	if err != nil {
		return nil, err
	}
	out, err := f.discounts.UpdateDiscount(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	f.audit.Record(ctx, "discount.update", id, p.UserID)
	return out, nil
}

func (f *CommerceFacade) CreateSubscriptionDiscount(ctx context.Context, d *model.SubscriptionDiscount) (*model.SubscriptionDiscount, error) {
	p, err := f.admin(ctx, "subscription_discount.create")
	if err != nil {
		return nil, err
	}
	out, err := f.discounts.CreateSubscriptionDiscount(ctx, d)
	if err != nil {
		return nil, err
	}
	f.audit.Record(ctx, "subscription_discount.create", out.ID, p.UserID)
	return out, nil
}

func (f *CommerceFacade) UpdateSubscriptionDiscount(ctx context.Context, id string, patch usecase.DiscountPatch) (*model.SubscriptionDiscount, error) {
	p, err := f.admin(ctx, "subscription_discount.update")
	if err != nil {
		return nil, err
	}
	out, err := f.discounts.UpdateSubscriptionDiscount(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	f.audit.Record(ctx, "subscription_discount.update", id, p.UserID)
	return out, nil
}

// QuoteDiscount previews the discounted amount without consuming a use.
func (f *CommerceFacade) QuoteDiscount(ctx context.Context, code string, pc usecase.PurchaseContext) (*usecase.DiscountResult, error) {
	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	pc.UserID = p.UserID
	var out *usecase.DiscountResult
	err = f.tm.WithTx(ctx, usecase.ReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = f.discounts.Quote(ctx, tx, code, pc)
		return err
	})
	return out, err
}

// RedeemDiscount validates code for a service purchase and records its use.
func (f *CommerceFacade) RedeemDiscount(ctx context.Context, code string, pc usecase.PurchaseContext) (*usecase.DiscountResult, error) {
	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	pc.UserID = p.UserID
	out, err := f.discounts.ValidateAndApply(ctx, code, pc)
	if err != nil {
		return nil, err
	}
	f.audit.Record(ctx, "discount.redeem", out.DiscountID, p.UserID)
	return out, nil
}
