package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

var (
	_ repository.CategoryRepository = (*categoryRepo)(nil)
	_ repository.ServiceRepository  = (*serviceRepo)(nil)
	_ repository.AuditRepository    = (*auditRepo)(nil)
)

type categoryRepo struct{ pool *pgxpool.Pool }

func NewCategoryRepo(pool *pgxpool.Pool) *categoryRepo {
	return &categoryRepo{pool: pool}
}

const categoryColumns = `id, name, slug, parent_id, sort_order, created_at, updated_at`

var categoryConstraints = map[string]error{
	"categories_slug_key":       domain.ErrDuplicateSlug,
	"categories_parent_id_fkey": domain.ErrParentNotFound,
	"categories_check":          domain.ErrCircularReference,
}

func (r *categoryRepo) Create(ctx context.Context, tx repository.Tx, c *model.Category) error {
	const q = `INSERT INTO categories (` + categoryColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Name, c.Slug, c.ParentID, c.Order, c.CreatedAt, c.UpdatedAt)
	return constraintErr(err, categoryConstraints)
}

func (r *categoryRepo) Update(ctx context.Context, tx repository.Tx, c *model.Category) error {
	const q = `
UPDATE categories
   SET name=$2, slug=$3, parent_id=$4, sort_order=$5, updated_at=$6
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Name, c.Slug, c.ParentID, c.Order, c.UpdatedAt)
	if err != nil {
		return constraintErr(err, categoryConstraints)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

// FindByID locks the row inside a transaction so that two concurrent
// reparents walking overlapping chains serialize on it.
func (r *categoryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Category, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(`SELECT `+categoryColumns+` FROM categories WHERE id=$1`, tx)+";", id)
	if err != nil {
		return nil, err
	}
	var c model.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.Order, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, scanErr(err, domain.ErrCategoryNotFound)
	}
	return &c, nil
}

func (r *categoryRepo) CountChildren(ctx context.Context, tx repository.Tx, id string) (int, error) {
	return count(ctx, r.pool, tx, `SELECT COUNT(1) FROM categories WHERE parent_id=$1;`, id)
}

func (r *categoryRepo) ChildIDs(ctx context.Context, tx repository.Tx, id string) ([]string, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT id FROM categories WHERE parent_id=$1;`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, translate(err)
		}
		out = append(out, child)
	}
	return out, translate(rows.Err())
}

// Delete relies on the RESTRICT foreign keys of children, services and
// discount scopes; any of them reports domain.ErrHasDependents.
func (r *categoryRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM categories WHERE id=$1;`, id)
	if err != nil {
		return constraintErr(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

// -----------------------------
// Services
// -----------------------------

type serviceRepo struct{ pool *pgxpool.Pool }

func NewServiceRepo(pool *pgxpool.Pool) *serviceRepo {
	return &serviceRepo{pool: pool}
}

func (r *serviceRepo) Save(ctx context.Context, tx repository.Tx, s *model.Service) error {
	const q = `
INSERT INTO services (id, category_id, name) VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET category_id=EXCLUDED.category_id, name=EXCLUDED.name;`
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.CategoryID, s.Name)
	return constraintErr(err, map[string]error{"services_category_id_fkey": domain.ErrCategoryNotFound})
}

func (r *serviceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Service, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT id, category_id, name FROM services WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	var s model.Service
	if err := row.Scan(&s.ID, &s.CategoryID, &s.Name); err != nil {
		return nil, scanErr(err, domain.ErrServiceNotFound)
	}
	return &s, nil
}

func (r *serviceRepo) CountByCategory(ctx context.Context, tx repository.Tx, categoryID string) (int, error) {
	return count(ctx, r.pool, tx, `SELECT COUNT(1) FROM services WHERE category_id=$1;`, categoryID)
}

// -----------------------------
// Audit
// -----------------------------

type auditRepo struct{ pool *pgxpool.Pool }

func NewAuditRepo(pool *pgxpool.Pool) *auditRepo {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Save(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	const q = `INSERT INTO audit_logs (id, action, subject_id, actor_id, created_at) VALUES ($1,$2,$3,$4,$5);`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Action, e.SubjectID, e.ActorID, e.CreatedAt)
	return err
}

func count(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (int, error) {
	row, err := pickRow(ctx, pool, tx, q, args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}
