package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

// Save inserts the user; an existing id reports domain.ErrAlreadyExists.
func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `INSERT INTO users (id, role, created_at) VALUES ($1, $2, $3);`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, string(u.Role), u.CreatedAt)
	return constraintErr(err, nil)
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const q = `SELECT id, role, created_at FROM users WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &role, &u.CreatedAt); err != nil {
		return nil, scanErr(err, domain.ErrUserNotFound)
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (r *PostgresUserRepo) Exists(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1);`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, translate(err)
	}
	return ok, nil
}
