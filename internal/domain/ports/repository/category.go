package repository

import (
	"context"

	"carservice-commerce/internal/domain/model"
)

// -----------------------------
// Categories
// -----------------------------

// CategoryRepository persists the category forest. FindByID returns
// domain.ErrCategoryNotFound.
type CategoryRepository interface {
	// Create and Update report domain.ErrDuplicateSlug on a slug collision.
	Create(ctx context.Context, tx Tx, c *model.Category) error
	Update(ctx context.Context, tx Tx, c *model.Category) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Category, error)
	CountChildren(ctx context.Context, tx Tx, id string) (int, error)
	ChildIDs(ctx context.Context, tx Tx, id string) ([]string, error)
	// Delete reports domain.ErrHasDependents when the store still holds rows
	// referencing the category.
	Delete(ctx context.Context, tx Tx, id string) error
}

// -----------------------------
// Services
// -----------------------------

// ServiceRepository reads the bookable services that hang off categories.
// FindByID returns domain.ErrServiceNotFound.
type ServiceRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Service) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Service, error)
	CountByCategory(ctx context.Context, tx Tx, categoryID string) (int, error)
}
