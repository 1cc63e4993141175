package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, status, auto_renew, start_date, end_date, created_at, updated_at`

// Save inserts a subscription. The partial unique index on ACTIVE rows
// turns a racing second activation into domain.ErrAlreadyActive.
func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PlanID, string(s.Status), s.AutoRenew, s.StartDate, s.EndDate, s.CreatedAt, s.UpdatedAt)
	return constraintErr(err, map[string]error{
		"uq_subscriptions_one_active": domain.ErrAlreadyActive,
		"subscriptions_user_id_fkey":  domain.ErrUserNotFound,
		"subscriptions_plan_id_fkey":  domain.ErrPlanNotFound,
	})
}

func (r *subscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
UPDATE subscriptions
   SET status=$2, auto_renew=$3, start_date=$4, end_date=$5, updated_at=$6
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, s.ID, string(s.Status), s.AutoRenew, s.StartDate, s.EndDate, s.UpdatedAt)
	if err != nil {
		return constraintErr(err, map[string]error{"uq_subscriptions_one_active": domain.ErrAlreadyActive})
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := forUpdate(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id=$1`, tx)
	return r.queryOne(ctx, tx, domain.ErrSubscriptionNotFound, q, id)
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 AND status='ACTIVE' LIMIT 1`
	return r.queryOne(ctx, tx, domain.ErrNoActiveSubscription, q, userID)
}

func (r *subscriptionRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='ACTIVE' AND end_date <= $1
 ORDER BY end_date
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, s)
	}
	return out, translate(rows.Err())
}

// Delete removes the row. Payments reference subscriptions with ON DELETE
// RESTRICT, so a paid subscription reports domain.ErrHasDependents.
func (r *subscriptionRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM subscriptions WHERE id=$1;`, id)
	if err != nil {
		return constraintErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, notFound error, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q+";", args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		return nil, scanErr(err, notFound)
	}
	return s, nil
}

func scanSubscription(row interface{ Scan(dest ...interface{}) error }) (*model.Subscription, error) {
	var s model.Subscription
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &status, &s.AutoRenew, &s.StartDate, &s.EndDate, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}
