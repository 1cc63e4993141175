package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

var (
	_ repository.DiscountRepository             = (*discountRepo)(nil)
	_ repository.SubscriptionDiscountRepository = (*subscriptionDiscountRepo)(nil)
	_ repository.RedemptionRepository           = (*redemptionRepo)(nil)
)

const termsColumns = `type, value, max_discount, max_uses, uses_count, start_date, end_date, min_amount, is_active, version`

// termsArgs returns the insert arguments for termsColumns, in order.
func termsArgs(t *model.DiscountTerms) []interface{} {
	return []interface{}{string(t.Type), t.Value, t.MaxDiscount, t.MaxUses, t.UsesCount, t.StartDate, t.EndDate, t.MinAmount, t.IsActive, t.Version}
}

// termsScan holds the nullable columns until they are copied into the terms.
type termsScan struct {
	typ         string
	maxDiscount decimal.NullDecimal
	minAmount   decimal.NullDecimal
}

func (s *termsScan) dest(t *model.DiscountTerms) []interface{} {
	return []interface{}{&s.typ, &t.Value, &s.maxDiscount, &t.MaxUses, &t.UsesCount, &t.StartDate, &t.EndDate, &s.minAmount, &t.IsActive, &t.Version}
}

func (s *termsScan) apply(t *model.DiscountTerms) {
	t.Type = model.DiscountType(s.typ)
	t.MaxDiscount, t.MinAmount = nil, nil
	if s.maxDiscount.Valid {
		v := s.maxDiscount.Decimal
		t.MaxDiscount = &v
	}
	if s.minAmount.Valid {
		v := s.minAmount.Decimal
		t.MinAmount = &v
	}
}

// incrementUses bumps uses_count under a version check and the usage cap.
// When nothing matched it re-reads the row to tell a missing code, a stale
// version and an exhausted cap apart.
func incrementUses(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, table, id string, expectedVersion int64) error {
	q := `
UPDATE ` + table + `
   SET uses_count=uses_count+1, version=version+1
 WHERE id=$1 AND version=$2 AND (max_uses IS NULL OR uses_count < max_uses);`
	tag, err := execSQL(ctx, pool, tx, q, id, expectedVersion)
	if err != nil {
		return constraintErr(err, map[string]error{
			table + "_uses_within_cap": domain.ErrCodeExhausted,
		})
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	row, err := pickRow(ctx, pool, tx, `SELECT version FROM `+table+` WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	var version int64
	if err := row.Scan(&version); err != nil {
		return scanErr(err, domain.ErrCodeNotFound)
	}
	if version != expectedVersion {
		return domain.ErrVersionConflict
	}
	return domain.ErrCodeExhausted
}

// -----------------------------
// Service discounts
// -----------------------------

type discountRepo struct{ pool *pgxpool.Pool }

func NewDiscountRepo(pool *pgxpool.Pool) *discountRepo {
	return &discountRepo{pool: pool}
}

const discountSelect = `
SELECT d.id, d.code, d.type, d.value, d.max_discount, d.max_uses, d.uses_count, d.start_date,
       d.end_date, d.min_amount, d.is_active, d.version,
       d.created_at, d.updated_at,
       ARRAY(SELECT service_id FROM discount_services WHERE discount_id=d.id ORDER BY service_id),
       ARRAY(SELECT category_id FROM discount_categories WHERE discount_id=d.id ORDER BY category_id)
  FROM discounts d`

var discountConstraints = map[string]error{
	"discounts_code_key":                   domain.ErrDuplicateCode,
	"discount_services_service_id_fkey":    domain.ErrServiceNotFound,
	"discount_categories_category_id_fkey": domain.ErrCategoryNotFound,
}

func (r *discountRepo) Create(ctx context.Context, tx repository.Tx, d *model.Discount) error {
	const q = `
INSERT INTO discounts (id, code, ` + termsColumns + `, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`
	args := append([]interface{}{d.ID, d.Code}, termsArgs(&d.DiscountTerms)...)
	args = append(args, d.CreatedAt, d.UpdatedAt)
	if _, err := execSQL(ctx, r.pool, tx, q, args...); err != nil {
		return constraintErr(err, discountConstraints)
	}
	return r.writeScope(ctx, tx, d)
}

// Update rewrites the discount and its scope. uses_count is owned by
// IncrementUses and left alone.
func (r *discountRepo) Update(ctx context.Context, tx repository.Tx, d *model.Discount) error {
	const q = `
UPDATE discounts
   SET code=$3, type=$4, value=$5, max_discount=$6, max_uses=$7, start_date=$8,
       end_date=$9, min_amount=$10, is_active=$11, updated_at=$12, version=version+1
 WHERE id=$1 AND version=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, d.ID, d.Version, d.Code, string(d.Type), d.Value,
		d.MaxDiscount, d.MaxUses, d.StartDate, d.EndDate, d.MinAmount, d.IsActive, d.UpdatedAt)
	if err != nil {
		return constraintErr(err, discountConstraints)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, d.ID); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM discount_services WHERE discount_id=$1;`, d.ID); err != nil {
		return err
	}
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM discount_categories WHERE discount_id=$1;`, d.ID); err != nil {
		return err
	}
	return r.writeScope(ctx, tx, d)
}

func (r *discountRepo) writeScope(ctx context.Context, tx repository.Tx, d *model.Discount) error {
	for _, id := range d.ServiceIDs {
		_, err := execSQL(ctx, r.pool, tx, `INSERT INTO discount_services (discount_id, service_id) VALUES ($1,$2) ON CONFLICT DO NOTHING;`, d.ID, id)
		if err != nil {
			return constraintErr(err, discountConstraints)
		}
	}
	for _, id := range d.CategoryIDs {
		_, err := execSQL(ctx, r.pool, tx, `INSERT INTO discount_categories (discount_id, category_id) VALUES ($1,$2) ON CONFLICT DO NOTHING;`, d.ID, id)
		if err != nil {
			return constraintErr(err, discountConstraints)
		}
	}
	return nil
}

func (r *discountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Discount, error) {
	return r.queryOne(ctx, tx, forUpdate(discountSelect+` WHERE d.id=$1`, tx), id)
}

func (r *discountRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Discount, error) {
	return r.queryOne(ctx, tx, forUpdate(discountSelect+` WHERE d.code=$1`, tx), model.NormalizeCode(code))
}

func (r *discountRepo) IncrementUses(ctx context.Context, tx repository.Tx, id string, expectedVersion int64) error {
	return incrementUses(ctx, r.pool, tx, "discounts", id, expectedVersion)
}

func (r *discountRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Discount, error) {
	row, err := pickRow(ctx, r.pool, tx, q+";", args...)
	if err != nil {
		return nil, err
	}
	var d model.Discount
	var ts termsScan
	dest := append([]interface{}{&d.ID, &d.Code}, ts.dest(&d.DiscountTerms)...)
	dest = append(dest, &d.CreatedAt, &d.UpdatedAt, &d.ServiceIDs, &d.CategoryIDs)
	if err := row.Scan(dest...); err != nil {
		return nil, scanErr(err, domain.ErrCodeNotFound)
	}
	ts.apply(&d.DiscountTerms)
	if len(d.ServiceIDs) == 0 {
		d.ServiceIDs = nil
	}
	if len(d.CategoryIDs) == 0 {
		d.CategoryIDs = nil
	}
	return &d, nil
}

// -----------------------------
// Subscription discounts
// -----------------------------

type subscriptionDiscountRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionDiscountRepo(pool *pgxpool.Pool) *subscriptionDiscountRepo {
	return &subscriptionDiscountRepo{pool: pool}
}

const subscriptionDiscountColumns = `id, code, plan_id, ` + termsColumns + `, created_at, updated_at`

var subscriptionDiscountConstraints = map[string]error{
	"subscription_discounts_code_key":     domain.ErrDuplicateCode,
	"subscription_discounts_plan_id_fkey": domain.ErrPlanNotFound,
}

func (r *subscriptionDiscountRepo) Create(ctx context.Context, tx repository.Tx, d *model.SubscriptionDiscount) error {
	const q = `
INSERT INTO subscription_discounts (` + subscriptionDiscountColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`
	args := append([]interface{}{d.ID, d.Code, d.PlanID}, termsArgs(&d.DiscountTerms)...)
	args = append(args, d.CreatedAt, d.UpdatedAt)
	_, err := execSQL(ctx, r.pool, tx, q, args...)
	return constraintErr(err, subscriptionDiscountConstraints)
}

func (r *subscriptionDiscountRepo) Update(ctx context.Context, tx repository.Tx, d *model.SubscriptionDiscount) error {
	const q = `
UPDATE subscription_discounts
   SET code=$3, plan_id=$4, type=$5, value=$6, max_discount=$7, max_uses=$8, start_date=$9,
       end_date=$10, min_amount=$11, is_active=$12, updated_at=$13, version=version+1
 WHERE id=$1 AND version=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, d.ID, d.Version, d.Code, d.PlanID, string(d.Type), d.Value,
		d.MaxDiscount, d.MaxUses, d.StartDate, d.EndDate, d.MinAmount, d.IsActive, d.UpdatedAt)
	if err != nil {
		return constraintErr(err, subscriptionDiscountConstraints)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, d.ID); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *subscriptionDiscountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionDiscount, error) {
	return r.queryOne(ctx, tx, forUpdate(`SELECT `+subscriptionDiscountColumns+` FROM subscription_discounts WHERE id=$1`, tx), id)
}

func (r *subscriptionDiscountRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.SubscriptionDiscount, error) {
	return r.queryOne(ctx, tx, forUpdate(`SELECT `+subscriptionDiscountColumns+` FROM subscription_discounts WHERE code=$1`, tx), model.NormalizeCode(code))
}

func (r *subscriptionDiscountRepo) IncrementUses(ctx context.Context, tx repository.Tx, id string, expectedVersion int64) error {
	return incrementUses(ctx, r.pool, tx, "subscription_discounts", id, expectedVersion)
}

func (r *subscriptionDiscountRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.SubscriptionDiscount, error) {
	row, err := pickRow(ctx, r.pool, tx, q+";", args...)
	if err != nil {
		return nil, err
	}
	var d model.SubscriptionDiscount
	var ts termsScan
	dest := append([]interface{}{&d.ID, &d.Code, &d.PlanID}, ts.dest(&d.DiscountTerms)...)
	dest = append(dest, &d.CreatedAt, &d.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, scanErr(err, domain.ErrCodeNotFound)
	}
	ts.apply(&d.DiscountTerms)
	return &d, nil
}

// -----------------------------
// Redemptions
// -----------------------------

type redemptionRepo struct{ pool *pgxpool.Pool }

func NewRedemptionRepo(pool *pgxpool.Pool) *redemptionRepo {
	return &redemptionRepo{pool: pool}
}

const redemptionColumns = `id, discount_id, kind, user_id, reference_id, original_amount, discounted_amount, created_at`

func (r *redemptionRepo) Save(ctx context.Context, tx repository.Tx, rd *model.Redemption) error {
	const q = `INSERT INTO discount_redemptions (` + redemptionColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, tx, q, rd.ID, rd.DiscountID, string(rd.Kind), rd.UserID, rd.ReferenceID,
		rd.OriginalAmount, rd.DiscountedAmount, rd.CreatedAt)
	return constraintErr(err, nil)
}

func (r *redemptionRepo) ListByDiscount(ctx context.Context, tx repository.Tx, discountID string) ([]*model.Redemption, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+redemptionColumns+` FROM discount_redemptions WHERE discount_id=$1 ORDER BY created_at, id;`, discountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Redemption
	for rows.Next() {
		var rd model.Redemption
		var kind string
		if err := rows.Scan(&rd.ID, &rd.DiscountID, &kind, &rd.UserID, &rd.ReferenceID,
			&rd.OriginalAmount, &rd.DiscountedAmount, &rd.CreatedAt); err != nil {
			return nil, translate(err)
		}
		rd.Kind = model.RedemptionKind(kind)
		out = append(out, &rd)
	}
	return out, translate(rows.Err())
}
