package usecase

import (
	"context"
	"errors"
	"time"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ActivateRequest is a first purchase of a plan.
type ActivateRequest struct {
	UserID         string
	Plan           *model.SubscriptionPlan
	AutoRenew      bool
	Amount         decimal.Decimal // price after discounts
	Method         model.PaymentMethod
	DiscountID     string
	IdempotencyKey string
}

// RenewalResult reports the outcome of one renewal attempt. When Renewed is
// false the subscription has moved to EXPIRED and Payment is the failed one.
type RenewalResult struct {
	Subscription *model.Subscription
	Payment      *model.Payment
	Renewed      bool
}

// SubscriptionLifecycle owns every subscription status transition:
// NONE -> ACTIVE -> {CANCELLED, EXPIRED}. Payments for activation and
// renewal go through the ledger in the same atomic unit.
type SubscriptionLifecycle struct {
	plans    repository.SubscriptionPlanRepository
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	ledger   *LedgerService
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSubscriptionLifecycle(
	plans repository.SubscriptionPlanRepository,
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	ledger *LedgerService,
	logger *zerolog.Logger,
) *SubscriptionLifecycle {
	return &SubscriptionLifecycle{
		plans:    plans,
		subs:     subs,
		payments: payments,
		ledger:   ledger,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *SubscriptionLifecycle) WithClock(now func() time.Time) *SubscriptionLifecycle {
	s.now = now
	return s
}

// Now is the lifecycle's notion of the current time.
func (s *SubscriptionLifecycle) Now() time.Time { return s.now() }

// ActivateTx creates the user's ACTIVE subscription and its first payment.
// It must run in a serializable unit: the "any active?" read and the insert
// are one check-and-act, backed by the store's one-active-per-user index.
func (s *SubscriptionLifecycle) ActivateTx(ctx context.Context, tx repository.Tx, req ActivateRequest) (*model.Subscription, *model.Payment, error) {
	if req.UserID == "" {
		return nil, nil, domain.ErrMissingUser
	}
	if req.Plan.IsZero() {
		return nil, nil, domain.ErrMissingPlan
	}
	if req.Amount.IsNegative() {
		return nil, nil, domain.ErrInvalidAmount
	}

	switch _, err := s.subs.FindActiveByUser(ctx, tx, req.UserID); {
	case err == nil:
		return nil, nil, domain.ErrAlreadyActive
	case !errors.Is(err, domain.ErrNoActiveSubscription):
		return nil, nil, err
	}

	sub, err := model.NewSubscription(req.UserID, req.Plan, req.AutoRenew, s.now())
	if err != nil {
		return nil, nil, err
	}
	if err := s.subs.Save(ctx, tx, sub); err != nil {
		return nil, nil, err
	}

	pay, err := s.charge(ctx, tx, sub, req.Amount, req.Method, req.DiscountID, req.IdempotencyKey)
	if err != nil {
		return nil, nil, err
	}
	return sub, pay, nil
}

// CancelTx moves an ACTIVE subscription to CANCELLED and clears autoRenew.
// A subscription already in a terminal status is returned unchanged with
// changed=false, so repeated cancels have no side effects.
func (s *SubscriptionLifecycle) CancelTx(ctx context.Context, tx repository.Tx, id string) (sub *model.Subscription, changed bool, err error) {
	cur, err := s.subs.FindByID(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	if cur.Status.Terminal() {
		return cur, false, nil
	}
	next, err := cur.Transition(model.SubscriptionStatusCancelled, s.now())
	if err != nil {
		return nil, false, err
	}
	if err := s.subs.Update(ctx, tx, next); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// RenewTx charges the plan price from the wallet and extends the period.
// Only an ACTIVE, auto-renewing subscription whose end date has passed is
// eligible. A failed charge expires the subscription instead; that outcome
// is committed and reported through RenewalResult.Renewed.
func (s *SubscriptionLifecycle) RenewTx(ctx context.Context, tx repository.Tx, id string) (*RenewalResult, error) {
	cur, err := s.subs.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if cur.Status != model.SubscriptionStatusActive || !cur.AutoRenew || !cur.Due(now) {
		return nil, domain.ErrRenewalNotDue
	}
	plan, err := s.plans.FindByID(ctx, tx, cur.PlanID)
	if err != nil {
		return nil, err
	}

	pay, err := s.charge(ctx, tx, cur, plan.Price, model.PaymentMethodWallet, "", "")
	if err == nil {
		next := cur.Extend(plan, now)
		if err := s.subs.Update(ctx, tx, next); err != nil {
			return nil, err
		}
		return &RenewalResult{Subscription: next, Payment: pay, Renewed: true}, nil
	}
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		return nil, err
	}

	failed, err := s.recordFailedCharge(ctx, tx, cur, plan.Price)
	if err != nil {
		return nil, err
	}
	expired, err := cur.Transition(model.SubscriptionStatusExpired, now)
	if err != nil {
		return nil, err
	}
	if err := s.subs.Update(ctx, tx, expired); err != nil {
		return nil, err
	}
	return &RenewalResult{Subscription: expired, Payment: failed}, nil
}

// ExpireTx ends a due subscription that does not auto-renew.
func (s *SubscriptionLifecycle) ExpireTx(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	cur, err := s.subs.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if cur.Status != model.SubscriptionStatusActive || !cur.Due(now) {
		return nil, domain.ErrInvalidTransition
	}
	next, err := cur.Transition(model.SubscriptionStatusExpired, now)
	if err != nil {
		return nil, err
	}
	if err := s.subs.Update(ctx, tx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// DeleteTx hard-deletes a subscription that no payment references. Anything
// with payments can only be cancelled.
func (s *SubscriptionLifecycle) DeleteTx(ctx context.Context, tx repository.Tx, id string) error {
	if _, err := s.subs.FindByID(ctx, tx, id); err != nil {
		return err
	}
	n, err := s.payments.CountBySubscription(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrHasDependents
	}
	return s.subs.Delete(ctx, tx, id)
}

// Active returns the user's ACTIVE subscription.
func (s *SubscriptionLifecycle) Active(ctx context.Context, userID string) (*model.Subscription, error) {
	defer logging.TraceDuration(s.log, "SubscriptionLifecycle.Active")()
	return s.subs.FindActiveByUser(ctx, repository.NoTX, userID)
}

// Due lists ACTIVE subscriptions whose period has ended.
func (s *SubscriptionLifecycle) Due(ctx context.Context, limit int) ([]*model.Subscription, error) {
	return s.subs.ListDue(ctx, repository.NoTX, s.now(), limit)
}

// ObserveTransition records a committed status change.
func ObserveTransition(from, to model.SubscriptionStatus) {
	if from == "" {
		from = "NONE"
	}
	metrics.IncSubscriptionTransition(string(from), string(to))
}

// charge creates the Payment for sub and, unless nothing is owed, the ledger
// transaction that settles it.
func (s *SubscriptionLifecycle) charge(ctx context.Context, tx repository.Tx, sub *model.Subscription, amount decimal.Decimal, method model.PaymentMethod, discountID, idemKey string) (*model.Payment, error) {
	if method == "" {
		method = model.PaymentMethodWallet
	}
	if !method.Valid() || method == model.PaymentMethodComplimentary {
		return nil, domain.ErrInvalidArgument
	}

	pay := &model.Payment{
		ID:             uuid.NewString(),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Amount:         amount,
		Method:         method,
		Status:         model.PaymentStatusCompleted,
		DiscountID:     optional(discountID),
		CreatedAt:      s.now(),
	}

	if amount.IsZero() {
		pay.Method = model.PaymentMethodComplimentary
	} else {
		t, err := s.ledger.ApplyTx(ctx, tx, ApplyRequest{
			UserID:         sub.UserID,
			Type:           model.TransactionPayment,
			Amount:         amount,
			IdempotencyKey: idemKey,
			Direct:         method == model.PaymentMethodDirect,
			Metadata: map[string]string{
				"subscription_id": sub.ID,
				"plan_id":         sub.PlanID,
				"payment_id":      pay.ID,
			},
		})
		if err != nil {
			if errors.Is(err, domain.ErrWalletNotFound) {
				// No wallet is an empty wallet.
				return nil, domain.ErrInsufficientFunds
			}
			return nil, err
		}
		pay.TransactionID = &t.ID
	}

	if err := s.payments.Save(ctx, tx, pay); err != nil {
		return nil, err
	}
	return pay, nil
}

func (s *SubscriptionLifecycle) recordFailedCharge(ctx context.Context, tx repository.Tx, sub *model.Subscription, amount decimal.Decimal) (*model.Payment, error) {
	pay := &model.Payment{
		ID:             uuid.NewString(),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Amount:         amount,
		Method:         model.PaymentMethodWallet,
		Status:         model.PaymentStatusFailed,
		CreatedAt:      s.now(),
	}
	var walletID *string
	if w, err := s.ledger.wallets.FindByUser(ctx, tx, sub.UserID); err == nil {
		walletID = &w.ID
	} else if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}
	t, err := s.ledger.RecordFailureTx(ctx, tx, walletID, sub.UserID, model.TransactionPayment, amount, map[string]string{
		"subscription_id": sub.ID,
		"plan_id":         sub.PlanID,
		"payment_id":      pay.ID,
		"reason":          domain.ErrInsufficientFunds.Code,
	})
	if err != nil {
		return nil, err
	}
	pay.TransactionID = &t.ID
	if err := s.payments.Save(ctx, tx, pay); err != nil {
		return nil, err
	}
	s.log.Warn().Str("subscription_id", sub.ID).Str("user_id", sub.UserID).Msg("renewal charge failed, subscription expired")
	return pay, nil
}
