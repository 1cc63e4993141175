package memory

import (
	"context"
	"sort"
	"time"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

func now() time.Time { return time.Now().UTC() }

// -----------------------------
// Plans
// -----------------------------

type planRepo struct{ s *Store }

func (r *planRepo) Save(_ context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	return r.s.view(tx, func(st *state) error {
		cp := *p
		cp.Features = append([]string(nil), p.Features...)
		st.plans[p.ID] = &cp
		return nil
	})
}

func (r *planRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	var out *model.SubscriptionPlan
	err := r.s.view(tx, func(st *state) error {
		p, ok := st.plans[id]
		if !ok {
			return domain.ErrPlanNotFound
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (r *planRepo) ListAll(_ context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	var out []*model.SubscriptionPlan
	err := r.s.view(tx, func(st *state) error {
		for _, p := range st.plans {
			cp := *p
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, err
}

// -----------------------------
// Subscriptions
// -----------------------------

type subscriptionRepo struct{ s *Store }

func (r *subscriptionRepo) Save(_ context.Context, tx repository.Tx, sub *model.Subscription) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.subs[sub.ID]; ok {
			return domain.ErrAlreadyExists
		}
		if _, ok := st.plans[sub.PlanID]; !ok {
			return domain.ErrPlanNotFound
		}
		if err := checkOneActive(st, sub); err != nil {
			return err
		}
		cp := *sub
		st.subs[sub.ID] = &cp
		return nil
	})
}

func (r *subscriptionRepo) Update(_ context.Context, tx repository.Tx, sub *model.Subscription) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.subs[sub.ID]; !ok {
			return domain.ErrSubscriptionNotFound
		}
		if err := checkOneActive(st, sub); err != nil {
			return err
		}
		cp := *sub
		st.subs[sub.ID] = &cp
		return nil
	})
}

// checkOneActive mirrors the partial unique index on active subscriptions.
func checkOneActive(st *state, sub *model.Subscription) error {
	if sub.Status != model.SubscriptionStatusActive {
		return nil
	}
	for _, cur := range st.subs {
		if cur.ID != sub.ID && cur.UserID == sub.UserID && cur.Status == model.SubscriptionStatusActive {
			return domain.ErrAlreadyActive
		}
	}
	return nil
}

func (r *subscriptionRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	var out *model.Subscription
	err := r.s.view(tx, func(st *state) error {
		s, ok := st.subs[id]
		if !ok {
			return domain.ErrSubscriptionNotFound
		}
		cp := *s
		out = &cp
		return nil
	})
	return out, err
}

func (r *subscriptionRepo) FindActiveByUser(_ context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	var out *model.Subscription
	err := r.s.view(tx, func(st *state) error {
		for _, s := range st.subs {
			if s.UserID == userID && s.Status == model.SubscriptionStatusActive {
				cp := *s
				out = &cp
				return nil
			}
		}
		return domain.ErrNoActiveSubscription
	})
	return out, err
}

func (r *subscriptionRepo) ListDue(_ context.Context, tx repository.Tx, at time.Time, limit int) ([]*model.Subscription, error) {
	var out []*model.Subscription
	err := r.s.view(tx, func(st *state) error {
		for _, s := range st.subs {
			if s.Status == model.SubscriptionStatusActive && s.Due(at) {
				cp := *s
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *subscriptionRepo) Delete(_ context.Context, tx repository.Tx, id string) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.subs[id]; !ok {
			return domain.ErrSubscriptionNotFound
		}
		for _, p := range st.payments {
			if p.SubscriptionID == id {
				return domain.ErrHasDependents
			}
		}
		delete(st.subs, id)
		return nil
	})
}

// -----------------------------
// Payments
// -----------------------------

type paymentRepo struct{ s *Store }

func (r *paymentRepo) Save(_ context.Context, tx repository.Tx, p *model.Payment) error {
	return r.s.view(tx, func(st *state) error {
		if _, ok := st.subs[p.SubscriptionID]; !ok {
			return domain.ErrSubscriptionNotFound
		}
		if p.TransactionID != nil {
			if _, ok := st.txs[*p.TransactionID]; !ok {
				return domain.ErrTransactionNotFound
			}
		}
		cp := *p
		st.payments[p.ID] = &cp
		return nil
	})
}

func (r *paymentRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	var out *model.Payment
	err := r.s.view(tx, func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return domain.ErrNotFound
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (r *paymentRepo) ListBySubscription(_ context.Context, tx repository.Tx, subscriptionID string) ([]*model.Payment, error) {
	var out []*model.Payment
	err := r.s.view(tx, func(st *state) error {
		for _, p := range st.payments {
			if p.SubscriptionID == subscriptionID {
				cp := *p
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *paymentRepo) CountBySubscription(_ context.Context, tx repository.Tx, subscriptionID string) (int, error) {
	n := 0
	err := r.s.view(tx, func(st *state) error {
		for _, p := range st.payments {
			if p.SubscriptionID == subscriptionID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *paymentRepo) MarkRefundedByTransaction(_ context.Context, tx repository.Tx, transactionID string) error {
	return r.s.view(tx, func(st *state) error {
		for id, p := range st.payments {
			if p.TransactionID != nil && *p.TransactionID == transactionID && p.Status == model.PaymentStatusCompleted {
				cp := *p
				cp.Status = model.PaymentStatusRefunded
				st.payments[id] = &cp
			}
		}
		return nil
	})
}
