package memory

import (
	"context"
	"sort"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

// -----------------------------
// Discounts
// -----------------------------

type discountRepo struct{ s *Store }

func copyDiscount(d *model.Discount) *model.Discount {
	cp := *d
	cp.ServiceIDs = append([]string(nil), d.ServiceIDs...)
	cp.CategoryIDs = append([]string(nil), d.CategoryIDs...)
	return &cp
}

func (r *discountRepo) checkScope(st *state, d *model.Discount) error {
	for _, id := range d.ServiceIDs {
		if _, ok := st.services[id]; !ok {
			return domain.ErrServiceNotFound
		}
	}
	for _, id := range d.CategoryIDs {
		if _, ok := st.categories[id]; !ok {
			return domain.ErrCategoryNotFound
		}
	}
	return nil
}

func (r *discountRepo) Create(_ context.Context, tx repository.Tx, d *model.Discount) error {
	return r.s.view(tx, func(st *state) error {
		for _, cur := range st.discounts {
			if cur.Code == d.Code {
				return domain.ErrDuplicateCode
			}
		}
		if err := r.checkScope(st, d); err != nil {
			return err
		}
		st.discounts[d.ID] = copyDiscount(d)
		return nil
	})
}

func (r *discountRepo) Update(_ context.Context, tx repository.Tx, d *model.Discount) error {
	return r.s.view(tx, func(st *state) error {
		cur, ok := st.discounts[d.ID]
		if !ok {
			return domain.ErrCodeNotFound
		}
		if cur.Version != d.Version {
			return domain.ErrVersionConflict
		}
		for _, other := range st.discounts {
			if other.ID != d.ID && other.Code == d.Code {
				return domain.ErrDuplicateCode
			}
		}
		if err := r.checkScope(st, d); err != nil {
			return err
		}
		cp := copyDiscount(d)
		cp.UsesCount = cur.UsesCount
		cp.Version = cur.Version + 1
		st.discounts[d.ID] = cp
		return nil
	})
}

func (r *discountRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Discount, error) {
	var out *model.Discount
	err := r.s.view(tx, func(st *state) error {
		d, ok := st.discounts[id]
		if !ok {
			return domain.ErrCodeNotFound
		}
		out = copyDiscount(d)
		return nil
	})
	return out, err
}

func (r *discountRepo) FindByCode(_ context.Context, tx repository.Tx, code string) (*model.Discount, error) {
	var out *model.Discount
	err := r.s.view(tx, func(st *state) error {
		for _, d := range st.discounts {
			if d.Code == code {
				out = copyDiscount(d)
				return nil
			}
		}
		return domain.ErrCodeNotFound
	})
	return out, err
}

func (r *discountRepo) IncrementUses(_ context.Context, tx repository.Tx, id string, expectedVersion int64) error {
	return r.s.view(tx, func(st *state) error {
		d, ok := st.discounts[id]
		if !ok {
			return domain.ErrCodeNotFound
		}
		if d.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		if d.MaxUses != nil && d.UsesCount+1 > *d.MaxUses {
			// CHECK (max_uses IS NULL OR uses_count <= max_uses)
			return domain.ErrCodeExhausted
		}
		cp := copyDiscount(d)
		cp.UsesCount++
		cp.Version++
		st.discounts[id] = cp
		return nil
	})
}

type subDiscountRepo struct{ s *Store }

func (r *subDiscountRepo) Create(_ context.Context, tx repository.Tx, d *model.SubscriptionDiscount) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.plans[d.PlanID]; !ok {
			return domain.ErrPlanNotFound
		}
		for _, cur := range st.subDiscounts {
			if cur.Code == d.Code {
				return domain.ErrDuplicateCode
			}
		}
		cp := *d
		st.subDiscounts[d.ID] = &cp
		return nil
	})
}

func (r *subDiscountRepo) Update(_ context.Context, tx repository.Tx, d *model.SubscriptionDiscount) error {
	return r.s.view(tx, func(st *state) error {
		cur, ok := st.subDiscounts[d.ID]
		if !ok {
			return domain.ErrCodeNotFound
		}
		if cur.Version != d.Version {
			return domain.ErrVersionConflict
		}
		for _, other := range st.subDiscounts {
			if other.ID != d.ID && other.Code == d.Code {
				return domain.ErrDuplicateCode
			}
		}
		cp := *d
		cp.UsesCount = cur.UsesCount
		cp.Version = cur.Version + 1
		st.subDiscounts[d.ID] = &cp
		return nil
	})
}

func (r *subDiscountRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.SubscriptionDiscount, error) {
	var out *model.SubscriptionDiscount
	err := r.s.view(tx, func(st *state) error {
		d, ok := st.subDiscounts[id]
		if !ok {
			return domain.ErrCodeNotFound
		}
		cp := *d
		out = &cp
		return nil
	})
	return out, err
}

func (r *subDiscountRepo) FindByCode(_ context.Context, tx repository.Tx, code string) (*model.SubscriptionDiscount, error) {
	var out *model.SubscriptionDiscount
	err := r.s.view(tx, func(st *state) error {
		for _, d := range st.subDiscounts {
			if d.Code == code {
				cp := *d
				out = &cp
				return nil
			}
		}
		return domain.ErrCodeNotFound
	})
	return out, err
}

func (r *subDiscountRepo) IncrementUses(_ context.Context, tx repository.Tx, id string, expectedVersion int64) error {
	return r.s.view(tx, func(st *state) error {
		d, ok := st.subDiscounts[id]
		if !ok {
			return domain.ErrCodeNotFound
		}
		if d.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		if d.MaxUses != nil && d.UsesCount+1 > *d.MaxUses {
			return domain.ErrCodeExhausted
		}
		cp := *d
		cp.UsesCount++
		cp.Version++
		st.subDiscounts[id] = &cp
		return nil
	})
}

type redemptionRepo struct{ s *Store }

func (r *redemptionRepo) Save(_ context.Context, tx repository.Tx, rd *model.Redemption) error {
	return r.s.view(tx, func(st *state) error {
		cp := *rd
		st.redemptions[rd.ID] = &cp
		return nil
	})
}

func (r *redemptionRepo) ListByDiscount(_ context.Context, tx repository.Tx, discountID string) ([]*model.Redemption, error) {
	var out []*model.Redemption
	err := r.s.view(tx, func(st *state) error {
		for _, rd := range st.redemptions {
			if rd.DiscountID == discountID {
				cp := *rd
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// -----------------------------
// Categories and services
// -----------------------------

type categoryRepo struct{ s *Store }

func (r *categoryRepo) checkRow(st *state, c *model.Category) error {
	for _, cur := range st.categories {
		if cur.ID != c.ID && cur.Slug == c.Slug {
			return domain.ErrDuplicateSlug
		}
	}
	if c.ParentID != nil {
		if *c.ParentID == c.ID {
			// CHECK (parent_id <> id)
			return domain.ErrCircularReference
		}
		if _, ok := st.categories[*c.ParentID]; !ok {
			return domain.ErrParentNotFound
		}
	}
	return nil
}

func (r *categoryRepo) Create(_ context.Context, tx repository.Tx, c *model.Category) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.categories[c.ID]; ok {
			return domain.ErrAlreadyExists
		}
		if err := r.checkRow(st, c); err != nil {
			return err
		}
		cp := *c
		st.categories[c.ID] = &cp
		return nil
	})
}

func (r *categoryRepo) Update(_ context.Context, tx repository.Tx, c *model.Category) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.categories[c.ID]; !ok {
			return domain.ErrCategoryNotFound
		}
		if err := r.checkRow(st, c); err != nil {
			return err
		}
		cp := *c
		st.categories[c.ID] = &cp
		return nil
	})
}

func (r *categoryRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Category, error) {
	var out *model.Category
	err := r.s.view(tx, func(st *state) error {
		c, ok := st.categories[id]
		if !ok {
			return domain.ErrCategoryNotFound
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (r *categoryRepo) CountChildren(_ context.Context, tx repository.Tx, id string) (int, error) {
	n := 0
	err := r.s.view(tx, func(st *state) error {
		for _, c := range st.categories {
			if c.ParentID != nil && *c.ParentID == id {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *categoryRepo) ChildIDs(_ context.Context, tx repository.Tx, id string) ([]string, error) {
	var out []string
	err := r.s.view(tx, func(st *state) error {
		for _, c := range st.categories {
			if c.ParentID != nil && *c.ParentID == id {
				out = append(out, c.ID)
			}
		}
		return nil
	})
	return out, err
}

// Delete enforces the same RESTRICT foreign keys as the SQL schema.
func (r *categoryRepo) Delete(_ context.Context, tx repository.Tx, id string) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.categories[id]; !ok {
			return domain.ErrCategoryNotFound
		}
		for _, c := range st.categories {
			if c.ParentID != nil && *c.ParentID == id {
				return domain.ErrHasDependents
			}
		}
		for _, s := range st.services {
			if s.CategoryID == id {
				return domain.ErrHasDependents
			}
		}
		for _, d := range st.discounts {
			for _, cid := range d.CategoryIDs {
				if cid == id {
					return domain.ErrHasDependents
				}
			}
		}
		delete(st.categories, id)
		return nil
	})
}

type serviceRepo struct{ s *Store }

func (r *serviceRepo) Save(_ context.Context, tx repository.Tx, svc *model.Service) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.categories[svc.CategoryID]; !ok {
			return domain.ErrCategoryNotFound
		}
		cp := *svc
		st.services[svc.ID] = &cp
		return nil
	})
}

func (r *serviceRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Service, error) {
	var out *model.Service
	err := r.s.view(tx, func(st *state) error {
		s, ok := st.services[id]
		if !ok {
			return domain.ErrServiceNotFound
		}
		cp := *s
		out = &cp
		return nil
	})
	return out, err
}

func (r *serviceRepo) CountByCategory(_ context.Context, tx repository.Tx, categoryID string) (int, error) {
	n := 0
	err := r.s.view(tx, func(st *state) error {
		for _, s := range st.services {
			if s.CategoryID == categoryID {
				n++
			}
		}
		return nil
	})
	return n, err
}

// -----------------------------
// Audit
// -----------------------------

type auditRepo struct{ s *Store }

func (r *auditRepo) Save(_ context.Context, tx repository.Tx, e *model.AuditEntry) error {
	return r.s.view(tx, func(st *state) error {
		cp := *e
		st.audit = append(st.audit, &cp)
		return nil
	})
}
