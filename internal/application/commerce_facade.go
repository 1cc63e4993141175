package application

import (
	"context"
	"errors"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/adapter"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/metrics"
	"carservice-commerce/internal/usecase"

	"github.com/rs/zerolog"
)

// Deps wires the facade. Repositories are the same instances the use cases
// were built with, so the facade can read inside their atomic units.
type Deps struct {
	TM            repository.TransactionManager
	Users         repository.UserRepository
	Plans         repository.SubscriptionPlanRepository
	Subscriptions repository.SubscriptionRepository
	Payments      repository.PaymentRepository
	Categories    repository.CategoryRepository

	PlanUC    *usecase.PlanUseCase
	Ledger    *usecase.LedgerService
	Discounts *usecase.DiscountEngine
	Lifecycle *usecase.SubscriptionLifecycle
	Guard     *usecase.CycleGuard

	Principals adapter.PrincipalResolver
	Audit      adapter.AuditSink

	MaxAttempts int
	Currency    string
}

// CommerceFacade runs one externally visible operation per call, each as a
// single atomic unit. Audit records are emitted only after commit.
type CommerceFacade struct {
	tm         repository.TransactionManager
	users      repository.UserRepository
	plans      repository.SubscriptionPlanRepository
	subs       repository.SubscriptionRepository
	payments   repository.PaymentRepository
	categories repository.CategoryRepository

	planUC    *usecase.PlanUseCase
	ledger    *usecase.LedgerService
	discounts *usecase.DiscountEngine
	lifecycle *usecase.SubscriptionLifecycle
	guard     *usecase.CycleGuard

	principals adapter.PrincipalResolver
	audit      adapter.AuditSink

	maxAttempts int
	currency    string
	log         *zerolog.Logger
}

func NewCommerceFacade(d Deps, logger *zerolog.Logger) *CommerceFacade {
	audit := d.Audit
	if audit == nil {
		audit = noopAudit{}
	}
	currency := d.Currency
	if currency == "" {
		currency = "USD"
	}
	return &CommerceFacade{
		tm:          d.TM,
		users:       d.Users,
		plans:       d.Plans,
		subs:        d.Subscriptions,
		payments:    d.Payments,
		categories:  d.Categories,
		planUC:      d.PlanUC,
		ledger:      d.Ledger,
		discounts:   d.Discounts,
		lifecycle:   d.Lifecycle,
		guard:       d.Guard,
		principals:  d.Principals,
		audit:       audit,
		maxAttempts: usecase.ClampAttempts(d.MaxAttempts),
		currency:    currency,
		log:         logger,
	}
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, string, string, string) {}

// -----------------------------
// Principal helpers
// -----------------------------

func (f *CommerceFacade) principal(ctx context.Context) (model.Principal, error) {
	if f.principals == nil {
		return model.Principal{}, domain.ErrUnauthenticated
	}
	p, err := f.principals.CurrentPrincipal(ctx)
	if err != nil {
		return model.Principal{}, err
	}
	if p.IsZero() {
		return model.Principal{}, domain.ErrUnauthenticated
	}
	return p, nil
}

func (f *CommerceFacade) admin(ctx context.Context, op string) (model.Principal, error) {
	p, err := f.principal(ctx)
	if err != nil {
		metrics.IncAdminAccess(op, "unauthenticated")
		return p, err
	}
	if !p.IsAdmin() {
		metrics.IncAdminAccess(op, "denied")
		logging.With(ctx, f.log).Warn().Str("user_id", p.UserID).Str("op", op).Msg("admin operation denied")
		return p, domain.ErrForbidden
	}
	metrics.IncAdminAccess(op, "granted")
	return p, nil
}

// owns allows the subject's owner and administrators.
func owns(p model.Principal, userID string) error {
	if p.IsAdmin() || p.UserID == userID {
		return nil
	}
	return domain.ErrForbidden
}

// -----------------------------
// Subscriptions
// -----------------------------

// PayRequest is a first purchase of a plan.
type PayRequest struct {
	UserID         string // defaults to the caller; only admins may buy for others
	PlanID         string
	DiscountCode   string
	Method         model.PaymentMethod
	AutoRenew      bool
	IdempotencyKey string
}

// Receipt is the result of a successful purchase.
type Receipt struct {
	Subscription *model.Subscription
	Payment      *model.Payment
	Discount     *usecase.DiscountResult
}

// PayForSubscription resolves the plan price, applies an optional discount,
// activates the subscription and charges it. Any failure rolls back the
// whole unit, so a rejected code never leaves a charge behind.
func (f *CommerceFacade) PayForSubscription(ctx context.Context, req PayRequest) (*Receipt, error) {
	defer logging.TraceDuration(f.log, "CommerceFacade.PayForSubscription")()

	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	userID := req.UserID
	if userID == "" {
		userID = p.UserID
	}
	if err := owns(p, userID); err != nil {
		return nil, err
	}
	if req.PlanID == "" {
		return nil, domain.ErrMissingPlan
	}

	var out *Receipt
	err = usecase.RunAtomic(ctx, f.tm, usecase.Serializable, f.maxAttempts, "subscription", func(ctx context.Context, tx repository.Tx) error {
		ok, err := f.users.Exists(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUserNotFound
		}
		plan, err := f.plans.FindByID(ctx, tx, req.PlanID)
		if err != nil {
			return err
		}

		amount := plan.Price
		var disc *usecase.DiscountResult
		if req.DiscountCode != "" {
			disc, err = f.discounts.ValidateForPlan(ctx, tx, req.DiscountCode, plan.ID, amount)
			if err != nil {
				return err
			}
			amount = disc.DiscountedAmount
		}

		act := usecase.ActivateRequest{
			UserID:         userID,
			Plan:           plan,
			AutoRenew:      req.AutoRenew,
			Amount:         amount,
			Method:         req.Method,
			IdempotencyKey: req.IdempotencyKey,
		}
		if disc != nil {
			act.DiscountID = disc.DiscountID
		}
		sub, pay, err := f.lifecycle.ActivateTx(ctx, tx, act)
		if err != nil {
			return err
		}
		if disc != nil {
			disc, err = f.discounts.RedeemForPlanTx(ctx, tx, req.DiscountCode, plan.ID, usecase.PurchaseContext{
				Amount:      plan.Price,
				UserID:      userID,
				ReferenceID: sub.ID,
			})
			if err != nil {
				return err
			}
		}
		out = &Receipt{Subscription: sub, Payment: pay, Discount: disc}
		return nil
	})
	if req.DiscountCode != "" {
		usecase.ObserveRedemption(model.RedemptionSubscription, err)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			metrics.IncPayment(string(model.PaymentMethodWallet), string(model.PaymentStatusFailed))
		}
		logging.With(ctx, f.log).Warn().Err(err).Str("user_id", userID).Str("plan_id", req.PlanID).Msg("subscription purchase rejected")
		return nil, err
	}

	usecase.ObserveTransition("", model.SubscriptionStatusActive)
	f.observePayment(out.Payment)
	f.audit.Record(ctx, "subscription.activate", out.Subscription.ID, p.UserID)
	logging.With(ctx, f.log).Info().
		Str("user_id", userID).
		Str("subscription_id", out.Subscription.ID).
		Str("amount", out.Payment.Amount.String()).
		Msg("subscription activated")
	return out, nil
}

// CancelSubscription is idempotent: cancelling a subscription that already
// reached a terminal status succeeds without side effects.
func (f *CommerceFacade) CancelSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	defer logging.TraceDuration(f.log, "CommerceFacade.CancelSubscription")()

	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	var sub *model.Subscription
	var changed bool
	err = usecase.RunAtomic(ctx, f.tm, usecase.ReadCommitted, f.maxAttempts, "subscription", func(ctx context.Context, tx repository.Tx) error {
		cur, err := f.subs.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := owns(p, cur.UserID); err != nil {
			return err
		}
		sub, changed, err = f.lifecycle.CancelTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		usecase.ObserveTransition(model.SubscriptionStatusActive, model.SubscriptionStatusCancelled)
		f.audit.Record(ctx, "subscription.cancel", sub.ID, p.UserID)
	}
	return sub, nil
}

// RenewSubscription renews a due subscription on request. When the wallet
// cannot cover the price the subscription is expired, that outcome is
// committed, and ErrInsufficientFunds is returned alongside it.
func (f *CommerceFacade) RenewSubscription(ctx context.Context, id string) (*usecase.RenewalResult, error) {
	defer logging.TraceDuration(f.log, "CommerceFacade.RenewSubscription")()

	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	res, err := f.renew(ctx, id, func(sub *model.Subscription) error { return owns(p, sub.UserID) })
	if err != nil {
		return nil, err
	}
	if !res.Renewed {
		f.audit.Record(ctx, "subscription.expire", id, p.UserID)
		return res, domain.ErrInsufficientFunds
	}
	f.audit.Record(ctx, "subscription.renew", id, p.UserID)
	return res, nil
}

func (f *CommerceFacade) renew(ctx context.Context, id string, check func(*model.Subscription) error) (*usecase.RenewalResult, error) {
	var res *usecase.RenewalResult
	err := usecase.RunAtomic(ctx, f.tm, usecase.ReadCommitted, f.maxAttempts, "subscription", func(ctx context.Context, tx repository.Tx) error {
		if check != nil {
			cur, err := f.subs.FindByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := check(cur); err != nil {
				return err
			}
		}
		r, err := f.lifecycle.RenewTx(ctx, tx, id)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.observePayment(res.Payment)
	if !res.Renewed {
		usecase.ObserveTransition(model.SubscriptionStatusActive, model.SubscriptionStatusExpired)
	}
	return res, nil
}

// RenewalSummary counts the outcomes of one sweep.
type RenewalSummary struct {
	Renewed int
	Expired int
	Failed  int
}

// ProcessDueSubscriptions sweeps ACTIVE subscriptions whose period ended:
// auto-renewing ones are charged, the rest expire. Each subscription is its
// own unit; one failure does not stop the sweep.
func (f *CommerceFacade) ProcessDueSubscriptions(ctx context.Context, limit int) (RenewalSummary, error) {
	defer logging.TraceDuration(f.log, "CommerceFacade.ProcessDueSubscriptions")()

	var sum RenewalSummary
	due, err := f.lifecycle.Due(ctx, limit)
	if err != nil {
		return sum, err
	}
	for _, s := range due {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		log := logging.With(ctx, f.log).With().Str("subscription_id", s.ID).Logger()

		if s.AutoRenew {
			res, err := f.renew(ctx, s.ID, nil)
			switch {
			case errors.Is(err, domain.ErrRenewalNotDue):
				continue
			case err != nil:
				sum.Failed++
				log.Error().Err(err).Msg("renewal failed")
				continue
			case res.Renewed:
				sum.Renewed++
				f.audit.Record(ctx, "subscription.renew", s.ID, "system")
			default:
				sum.Expired++
				f.audit.Record(ctx, "subscription.expire", s.ID, "system")
			}
			continue
		}

		err := usecase.RunAtomic(ctx, f.tm, usecase.ReadCommitted, f.maxAttempts, "subscription", func(ctx context.Context, tx repository.Tx) error {
			_, err := f.lifecycle.ExpireTx(ctx, tx, s.ID)
			return err
		})
		switch {
		case errors.Is(err, domain.ErrInvalidTransition):
			continue
		case err != nil:
			sum.Failed++
			log.Error().Err(err).Msg("expiry failed")
		default:
			sum.Expired++
			usecase.ObserveTransition(model.SubscriptionStatusActive, model.SubscriptionStatusExpired)
			f.audit.Record(ctx, "subscription.expire", s.ID, "system")
		}
	}
	metrics.IncSubscriptionsRenewed(sum.Renewed)
	return sum, nil
}

// DeleteSubscription hard-deletes a subscription no payment references.
func (f *CommerceFacade) DeleteSubscription(ctx context.Context, id string) error {
	p, err := f.admin(ctx, "subscription.delete")
	if err != nil {
		return err
	}
	err = usecase.RunAtomic(ctx, f.tm, usecase.ReadCommitted, f.maxAttempts, "subscription", func(ctx context.Context, tx repository.Tx) error {
		return f.lifecycle.DeleteTx(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	f.audit.Record(ctx, "subscription.delete", id, p.UserID)
	return nil
}

// ActiveSubscription returns the caller's ACTIVE subscription.
func (f *CommerceFacade) ActiveSubscription(ctx context.Context) (*model.Subscription, error) {
	p, err := f.principal(ctx)
	if err != nil {
		return nil, err
	}
	return f.lifecycle.Active(ctx, p.UserID)
}

// ListPlans returns every plan, cheapest first.
func (f *CommerceFacade) ListPlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	if _, err := f.principal(ctx); err != nil {
		return nil, err
	}
	return f.planUC.List(ctx)
}

func (f *CommerceFacade) observePayment(p *model.Payment) {
	if p == nil {
		return
	}
	metrics.IncPayment(string(p.Method), string(p.Status))
	if p.Status == model.PaymentStatusCompleted && p.TransactionID != nil {
		metrics.IncLedgerTransaction(string(model.TransactionPayment), string(model.TransactionCompleted))
		amount, _ := p.Amount.Float64()
		metrics.AddLedgerAmount(string(model.TransactionPayment), amount)
		metrics.AddPaymentRevenue(f.currency, amount)
	}
}
