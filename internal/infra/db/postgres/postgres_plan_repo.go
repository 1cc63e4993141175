package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.SubscriptionPlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

// Save upserts a plan. Subscriptions reference plans by id, so the id is
// the only thing that must never change.
func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	const q = `
INSERT INTO subscription_plans (id, name, price, duration_days, features, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
  SET name          = EXCLUDED.name,
      price         = EXCLUDED.price,
      duration_days = EXCLUDED.duration_days,
      features      = EXCLUDED.features;
`
	features := plan.Features
	if features == nil {
		features = []string{}
	}
	_, err := execSQL(ctx, r.pool, tx, q, plan.ID, plan.Name, plan.Price, plan.DurationDays, features, plan.CreatedAt)
	return err
}

const planColumns = `id, name, price, duration_days, features, created_at`

func scanPlan(row interface{ Scan(dest ...interface{}) error }) (*model.SubscriptionPlan, error) {
	var p model.SubscriptionPlan
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.DurationDays, &p.Features, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrPlanNotFound)
	}
	return p, nil
}

func (r *PostgresPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY price, id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, p)
	}
	return out, translate(rows.Err())
}
