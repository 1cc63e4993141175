package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, subscription_id, amount, method, status, transaction_id, discount_id, created_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (` + paymentColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.SubscriptionID, p.Amount, string(p.Method), string(p.Status), p.TransactionID, p.DiscountID, p.CreatedAt)
	return constraintErr(err, map[string]error{
		"payments_subscription_id_fkey": domain.ErrSubscriptionNotFound,
		"payments_transaction_id_fkey":  domain.ErrTransactionNotFound,
		"payments_user_id_fkey":         domain.ErrUserNotFound,
	})
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, scanErr(err, domain.ErrNotFound)
	}
	return p, nil
}

func (r *paymentRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+paymentColumns+` FROM payments WHERE subscription_id=$1 ORDER BY created_at, id;`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, p)
	}
	return out, translate(rows.Err())
}

func (r *paymentRepo) CountBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (int, error) {
	return count(ctx, r.pool, tx, `SELECT COUNT(1) FROM payments WHERE subscription_id=$1;`, subscriptionID)
}

func (r *paymentRepo) MarkRefundedByTransaction(ctx context.Context, tx repository.Tx, transactionID string) error {
	const q = `UPDATE payments SET status='refunded' WHERE transaction_id=$1 AND status='completed';`
	_, err := execSQL(ctx, r.pool, tx, q, transactionID)
	return err
}

func scanPayment(row interface{ Scan(dest ...interface{}) error }) (*model.Payment, error) {
	var p model.Payment
	var method, status string
	if err := row.Scan(&p.ID, &p.UserID, &p.SubscriptionID, &p.Amount, &method, &status, &p.TransactionID, &p.DiscountID, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Method = model.PaymentMethod(method)
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
