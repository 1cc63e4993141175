package repository

import (
	"context"

	"carservice-commerce/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	Exists(ctx context.Context, tx Tx, id string) (bool, error)
}
