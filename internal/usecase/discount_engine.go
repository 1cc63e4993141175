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

// PurchaseContext is what a code is validated against.
type PurchaseContext struct {
	Amount      decimal.Decimal
	ServiceID   string
	CategoryID  string
	UserID      string
	ReferenceID string // booking or subscription the redemption pays for
}

// DiscountResult is the outcome of a successful validation.
type DiscountResult struct {
	DiscountID       string
	Code             string
	OriginalAmount   decimal.Decimal
	DiscountedAmount decimal.Decimal
}

// DiscountEngine validates codes and accounts for their use. Redemption
// increments usesCount with a version-checked write in the same unit as the
// purchase, so a capped code is never over-redeemed.
type DiscountEngine struct {
	discounts    repository.DiscountRepository
	subDiscounts repository.SubscriptionDiscountRepository
	redemptions  repository.RedemptionRepository
	plans        repository.SubscriptionPlanRepository
	scope        *ScopeResolver
	tm           repository.TransactionManager
	maxAttempts  int
	log          *zerolog.Logger
	now          func() time.Time
}

func NewDiscountEngine(
	discounts repository.DiscountRepository,
	subDiscounts repository.SubscriptionDiscountRepository,
	redemptions repository.RedemptionRepository,
	plans repository.SubscriptionPlanRepository,
	scope *ScopeResolver,
	tm repository.TransactionManager,
	maxAttempts int,
	logger *zerolog.Logger,
) *DiscountEngine {
	return &DiscountEngine{
		discounts:    discounts,
		subDiscounts: subDiscounts,
		redemptions:  redemptions,
		plans:        plans,
		scope:        scope,
		tm:           tm,
		maxAttempts:  ClampAttempts(maxAttempts),
		log:          logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ValidateAndApply validates code against pc and redeems it in one atomic
// unit of its own.
func (e *DiscountEngine) ValidateAndApply(ctx context.Context, code string, pc PurchaseContext) (*DiscountResult, error) {
	defer logging.TraceDuration(e.log, "DiscountEngine.ValidateAndApply")()

	var out *DiscountResult
	err := RunAtomic(ctx, e.tm, ReadCommitted, e.maxAttempts, "discount", func(ctx context.Context, tx repository.Tx) error {
		res, err := e.RedeemTx(ctx, tx, code, pc)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	ObserveRedemption(model.RedemptionService, err)
	if err != nil {
		logging.With(ctx, e.log).Warn().Err(err).Str("code", model.NormalizeCode(code)).Msg("discount rejected")
		return nil, err
	}
	return out, nil
}

// Quote validates without redeeming.
func (e *DiscountEngine) Quote(ctx context.Context, tx repository.Tx, code string, pc PurchaseContext) (*DiscountResult, error) {
	d, err := e.validate(ctx, tx, code, pc)
	if err != nil {
		return nil, err
	}
	return result(d.ID, d.Code, &d.DiscountTerms, pc.Amount), nil
}

// RedeemTx validates code and records its use inside the caller's unit.
func (e *DiscountEngine) RedeemTx(ctx context.Context, tx repository.Tx, code string, pc PurchaseContext) (*DiscountResult, error) {
	d, err := e.validate(ctx, tx, code, pc)
	if err != nil {
		return nil, err
	}
	if err := e.discounts.IncrementUses(ctx, tx, d.ID, d.Version); err != nil {
		return nil, err
	}
	res := result(d.ID, d.Code, &d.DiscountTerms, pc.Amount)
	if err := e.recordRedemption(ctx, tx, model.RedemptionService, res, pc); err != nil {
		return nil, err
	}
	return res, nil
}

// ValidateForPlan validates a subscription discount for planID without
// redeeming it.
func (e *DiscountEngine) ValidateForPlan(ctx context.Context, tx repository.Tx, code, planID string, amount decimal.Decimal) (*DiscountResult, error) {
	d, err := e.validatePlan(ctx, tx, code, planID, amount)
	if err != nil {
		return nil, err
	}
	return result(d.ID, d.Code, &d.DiscountTerms, amount), nil
}

// RedeemForPlanTx redeems a subscription discount inside the caller's unit.
func (e *DiscountEngine) RedeemForPlanTx(ctx context.Context, tx repository.Tx, code, planID string, pc PurchaseContext) (*DiscountResult, error) {
	d, err := e.validatePlan(ctx, tx, code, planID, pc.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.subDiscounts.IncrementUses(ctx, tx, d.ID, d.Version); err != nil {
		return nil, err
	}
	res := result(d.ID, d.Code, &d.DiscountTerms, pc.Amount)
	if err := e.recordRedemption(ctx, tx, model.RedemptionSubscription, res, pc); err != nil {
		return nil, err
	}
	return res, nil
}

// validate applies the checks in their reporting order: existence, window,
// usage cap, minimum amount, scope.
func (e *DiscountEngine) validate(ctx context.Context, tx repository.Tx, code string, pc PurchaseContext) (*model.Discount, error) {
	if !pc.Amount.IsPositive() || !model.IsMoney(pc.Amount) {
		return nil, domain.ErrInvalidAmount
	}
	code = model.NormalizeCode(code)
	if code == "" {
		return nil, domain.ErrCodeNotFound
	}
	d, err := e.discounts.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if err := e.checkTerms(&d.DiscountTerms, pc.Amount); err != nil {
		return nil, err
	}
	ok, err := e.scope.Matches(ctx, tx, d, pc.ServiceID, pc.CategoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrOutOfScope
	}
	return d, nil
}

func (e *DiscountEngine) validatePlan(ctx context.Context, tx repository.Tx, code, planID string, amount decimal.Decimal) (*model.SubscriptionDiscount, error) {
	if !amount.IsPositive() || !model.IsMoney(amount) {
		return nil, domain.ErrInvalidAmount
	}
	code = model.NormalizeCode(code)
	if code == "" {
		return nil, domain.ErrCodeNotFound
	}
	d, err := e.subDiscounts.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if err := e.checkTerms(&d.DiscountTerms, amount); err != nil {
		return nil, err
	}
	if !e.scope.MatchesPlan(d, planID) {
		return nil, domain.ErrOutOfScope
	}
	return d, nil
}

func (e *DiscountEngine) checkTerms(t *model.DiscountTerms, amount decimal.Decimal) error {
	if !t.IsActive {
		return domain.ErrCodeNotFound
	}
	if err := t.CheckWindow(e.now()); err != nil {
		return err
	}
	if t.Exhausted() {
		return domain.ErrCodeExhausted
	}
	return t.CheckMinimum(amount)
}

func (e *DiscountEngine) recordRedemption(ctx context.Context, tx repository.Tx, kind model.RedemptionKind, res *DiscountResult, pc PurchaseContext) error {
	return e.redemptions.Save(ctx, tx, &model.Redemption{
		ID:               uuid.NewString(),
		DiscountID:       res.DiscountID,
		Kind:             kind,
		UserID:           pc.UserID,
		ReferenceID:      pc.ReferenceID,
		OriginalAmount:   res.OriginalAmount,
		DiscountedAmount: res.DiscountedAmount,
		CreatedAt:        e.now(),
	})
}

func result(id, code string, t *model.DiscountTerms, amount decimal.Decimal) *DiscountResult {
	return &DiscountResult{
		DiscountID:       id,
		Code:             code,
		OriginalAmount:   amount,
		DiscountedAmount: t.Apply(amount),
	}
}

// ObserveRedemption counts a redemption attempt by outcome.
func ObserveRedemption(kind model.RedemptionKind, err error) {
	if err == nil {
		metrics.IncDiscountRedemption(string(kind), "redeemed")
		return
	}
	metrics.IncDiscountRedemption(string(kind), domain.AsError(err).Code)
}

// -----------------------------
// Catalog management
// -----------------------------

// CreateDiscount normalizes and validates d, then stores it.
func (e *DiscountEngine) CreateDiscount(ctx context.Context, d *model.Discount) (*model.Discount, error) {
	defer logging.TraceDuration(e.log, "DiscountEngine.CreateDiscount")()

	now := e.now()
	d.ID = uuid.NewString()
	d.Code = model.NormalizeCode(d.Code)
	d.UsesCount, d.Version = 0, 0
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Code == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	err := e.tm.WithTx(ctx, ReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		return e.discounts.Create(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DiscountPatch carries the mutable fields of a discount; nil leaves a
// field unchanged.
type DiscountPatch struct {
	Code         *string
	Type         *model.DiscountType
	Value        *decimal.Decimal
	MaxDiscount  *decimal.Decimal
	MaxUses      *int64
	ClearMaxUses bool
	StartDate    *time.Time
	EndDate      *time.Time
	MinAmount    *decimal.Decimal
	IsActive     *bool
	ServiceIDs   *[]string
	CategoryIDs  *[]string
}

func (p DiscountPatch) applyTerms(t *model.DiscountTerms) {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Value != nil {
		t.Value = *p.Value
	}
	if p.MaxDiscount != nil {
		t.MaxDiscount = p.MaxDiscount
	}
	if p.ClearMaxUses {
		t.MaxUses = nil
	} else if p.MaxUses != nil {
		t.MaxUses = p.MaxUses
	}
	if p.StartDate != nil {
		t.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		t.EndDate = *p.EndDate
	}
	if p.MinAmount != nil {
		t.MinAmount = p.MinAmount
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
}

// UpdateDiscount applies patch to the discount with optimistic retry, since
// redemptions may bump its version concurrently.
func (e *DiscountEngine) UpdateDiscount(ctx context.Context, id string, patch DiscountPatch) (*model.Discount, error) {
	defer logging.TraceDuration(e.log, "DiscountEngine.UpdateDiscount")()

	var out *model.Discount
	err := RunAtomic(ctx, e.tm, ReadCommitted, e.maxAttempts, "discount", func(ctx context.Context, tx repository.Tx) error {
		d, err := e.discounts.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Code != nil {
			d.Code = model.NormalizeCode(*patch.Code)
			if d.Code == "" {
				return domain.ErrInvalidArgument
			}
		}
		patch.applyTerms(&d.DiscountTerms)
		if patch.ServiceIDs != nil {
			d.ServiceIDs = *patch.ServiceIDs
		}
		if patch.CategoryIDs != nil {
			d.CategoryIDs = *patch.CategoryIDs
		}
		if err := d.Validate(); err != nil {
			return err
		}
		d.UpdatedAt = e.now()
		if err := e.discounts.Update(ctx, tx, d); err != nil {
			return err
		}
		d.Version++
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSubscriptionDiscount stores a plan-bound code.
func (e *DiscountEngine) CreateSubscriptionDiscount(ctx context.Context, d *model.SubscriptionDiscount) (*model.SubscriptionDiscount, error) {
	defer logging.TraceDuration(e.log, "DiscountEngine.CreateSubscriptionDiscount")()

	now := e.now()
	d.ID = uuid.NewString()
	d.Code = model.NormalizeCode(d.Code)
	d.UsesCount, d.Version = 0, 0
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Code == "" {
		return nil, domain.ErrInvalidArgument
	}
	if d.PlanID == "" {
		return nil, domain.ErrMissingPlan
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	err := e.tm.WithTx(ctx, ReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		if _, err := e.plans.FindByID(ctx, tx, d.PlanID); err != nil {
			return err
		}
		return e.subDiscounts.Create(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateSubscriptionDiscount applies the term fields of patch.
func (e *DiscountEngine) UpdateSubscriptionDiscount(ctx context.Context, id string, patch DiscountPatch) (*model.SubscriptionDiscount, error) {
	var out *model.SubscriptionDiscount
	err := RunAtomic(ctx, e.tm, ReadCommitted, e.maxAttempts, "discount", func(ctx context.Context, tx repository.Tx) error {
		d, err := e.subDiscounts.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Code != nil {
			d.Code = model.NormalizeCode(*patch.Code)
			if d.Code == "" {
				return domain.ErrInvalidArgument
			}
		}
		patch.applyTerms(&d.DiscountTerms)
		if err := d.Validate(); err != nil {
			return err
		}
		d.UpdatedAt = e.now()
		if err := e.subDiscounts.Update(ctx, tx, d); err != nil {
			return err
		}
		d.Version++
		out = d
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			e.log.Warn().Str("discount_id", id).Msg("subscription discount update gave up after retries")
		}
		return nil, err
	}
	return out, nil
}
