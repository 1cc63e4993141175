// Package memory is a process-local implementation of every repository and
// of the TransactionManager. Units run one at a time under a single mutex
// and roll back by restoring a snapshot, which gives serializable semantics.
// It mirrors the constraints of deploy/postgres/init.sql.
package memory

import (
	"context"
	"sync"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

// txHandle marks calls made inside WithTx; the store lock is already held.
type txHandle struct{ s *Store }

type state struct {
	users        map[string]*model.User
	wallets      map[string]*model.Wallet
	txs          map[string]*model.Transaction
	plans        map[string]*model.SubscriptionPlan
	subs         map[string]*model.Subscription
	payments     map[string]*model.Payment
	discounts    map[string]*model.Discount
	subDiscounts map[string]*model.SubscriptionDiscount
	redemptions  map[string]*model.Redemption
	categories   map[string]*model.Category
	services     map[string]*model.Service
	audit        []*model.AuditEntry
}

func newState() *state {
	return &state{
		users:        map[string]*model.User{},
		wallets:      map[string]*model.Wallet{},
		txs:          map[string]*model.Transaction{},
		plans:        map[string]*model.SubscriptionPlan{},
		subs:         map[string]*model.Subscription{},
		payments:     map[string]*model.Payment{},
		discounts:    map[string]*model.Discount{},
		subDiscounts: map[string]*model.SubscriptionDiscount{},
		redemptions:  map[string]*model.Redemption{},
		categories:   map[string]*model.Category{},
		services:     map[string]*model.Service{},
	}
}

// clone is shallow per row: rows are never mutated in place, every write
// stores a fresh copy.
func (st *state) clone() *state {
	return &state{
		users:        cloneMap(st.users),
		wallets:      cloneMap(st.wallets),
		txs:          cloneMap(st.txs),
		plans:        cloneMap(st.plans),
		subs:         cloneMap(st.subs),
		payments:     cloneMap(st.payments),
		discounts:    cloneMap(st.discounts),
		subDiscounts: cloneMap(st.subDiscounts),
		redemptions:  cloneMap(st.redemptions),
		categories:   cloneMap(st.categories),
		services:     cloneMap(st.services),
		audit:        append([]*model.AuditEntry(nil), st.audit...),
	}
}

func cloneMap[V any](m map[string]*V) map[string]*V {
	out := make(map[string]*V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store holds all rows.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// WithTx runs fn with exclusive access. Any error restores the snapshot
// taken before fn started.
func (s *Store) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return ctxErr(err)
	}
	snapshot := s.st.clone()
	if err := fn(ctx, txHandle{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		// Caller gave up before commit.
		s.st = snapshot
		return ctxErr(err)
	}
	return nil
}

// view runs f under the lock unless the caller is already inside WithTx.
func (s *Store) view(tx repository.Tx, f func(st *state) error) error {
	if h, ok := tx.(txHandle); ok && h.s == s {
		return f(s.st)
	}
	if tx != nil {
		return domain.ErrInvalidExecContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.st)
}

func ctxErr(err error) error {
	if err == context.DeadlineExceeded {
		return domain.ErrTransientFailure
	}
	return err
}

var _ repository.TransactionManager = (*Store)(nil)

// Repository accessors.

func (s *Store) Users() repository.UserRepository                 { return &userRepo{s} }
func (s *Store) Wallets() repository.WalletRepository             { return &walletRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository   { return &transactionRepo{s} }
func (s *Store) Plans() repository.SubscriptionPlanRepository     { return &planRepo{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository { return &subscriptionRepo{s} }
func (s *Store) Payments() repository.PaymentRepository           { return &paymentRepo{s} }
func (s *Store) Discounts() repository.DiscountRepository         { return &discountRepo{s} }
func (s *Store) SubscriptionDiscounts() repository.SubscriptionDiscountRepository {
	return &subDiscountRepo{s}
}
func (s *Store) Redemptions() repository.RedemptionRepository { return &redemptionRepo{s} }
func (s *Store) Categories() repository.CategoryRepository   { return &categoryRepo{s} }
func (s *Store) Services() repository.ServiceRepository       { return &serviceRepo{s} }
func (s *Store) Audit() repository.AuditRepository            { return &auditRepo{s} }

// AuditEntries returns a copy of the audit trail.
func (s *Store) AuditEntries() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEntry, 0, len(s.st.audit))
	for _, e := range s.st.audit {
		out = append(out, *e)
	}
	return out
}
