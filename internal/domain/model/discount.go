package model

import (
	"strings"
	"time"

	"carservice-commerce/internal/domain"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var hundred = decimal.NewFromInt(100)

// NormalizeCode canonicalizes a discount code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DiscountTerms is the part shared by service discounts and subscription
// discounts: value computation, validity window and usage accounting.
// Version guards UsesCount against lost updates.
type DiscountTerms struct {
	Type        DiscountType
	Value       decimal.Decimal
	MaxDiscount *decimal.Decimal
	MaxUses     *int64 // nil means unlimited
	UsesCount   int64
	StartDate   time.Time
	EndDate     time.Time
	MinAmount   *decimal.Decimal
	IsActive    bool
	Version     int64
}

// Validate checks the static invariants of the terms.
func (t *DiscountTerms) Validate() error {
	switch t.Type {
	case DiscountPercentage:
		if !t.Value.IsPositive() || t.Value.GreaterThan(hundred) {
			return domain.ErrInvalidArgument
		}
	case DiscountFixed:
		if !t.Value.IsPositive() {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrInvalidArgument
	}
	if !IsMoney(t.Value) {
		return domain.ErrInvalidAmount
	}
	if !t.StartDate.Before(t.EndDate) {
		return domain.ErrInvalidWindow
	}
	if t.MaxUses != nil && (*t.MaxUses < 0 || t.UsesCount > *t.MaxUses) {
		return domain.ErrInvalidArgument
	}
	if t.MaxDiscount != nil && (t.MaxDiscount.IsNegative() || !IsMoney(*t.MaxDiscount)) {
		return domain.ErrInvalidArgument
	}
	if t.MinAmount != nil && (t.MinAmount.IsNegative() || !IsMoney(*t.MinAmount)) {
		return domain.ErrInvalidArgument
	}
	return nil
}

// CheckWindow fails with ErrCodeExpired outside [StartDate, EndDate].
func (t *DiscountTerms) CheckWindow(now time.Time) error {
	if now.Before(t.StartDate) || now.After(t.EndDate) {
		return domain.ErrCodeExpired
	}
	return nil
}

// Exhausted reports whether the usage cap has been reached.
func (t *DiscountTerms) Exhausted() bool {
	return t.MaxUses != nil && t.UsesCount >= *t.MaxUses
}

// CheckMinimum fails with ErrBelowMinimum when amount is under MinAmount.
func (t *DiscountTerms) CheckMinimum(amount decimal.Decimal) error {
	if t.MinAmount != nil && amount.LessThan(*t.MinAmount) {
		return domain.ErrBelowMinimum
	}
	return nil
}

// Apply computes the price after discount. The result is never negative and
// the discount never exceeds the amount.
func (t *DiscountTerms) Apply(amount decimal.Decimal) decimal.Decimal {
	var off decimal.Decimal
	switch t.Type {
	case DiscountPercentage:
		off = amount.Mul(t.Value).Div(hundred).Round(2)
		if t.MaxDiscount != nil && off.GreaterThan(*t.MaxDiscount) {
			off = *t.MaxDiscount
		}
	case DiscountFixed:
		off = t.Value
	}
	if off.GreaterThan(amount) {
		off = amount
	}
	return amount.Sub(off)
}

// Discount applies to services and categories of the marketplace. Empty
// ServiceIDs and CategoryIDs mean the discount applies to everything.
type Discount struct {
	ID   string
	Code string
	DiscountTerms
	ServiceIDs  []string
	CategoryIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Universal reports whether the discount has an empty scope.
func (d *Discount) Universal() bool {
	return len(d.ServiceIDs) == 0 && len(d.CategoryIDs) == 0
}

// SubscriptionDiscount is restricted to a single subscription plan.
type SubscriptionDiscount struct {
	ID   string
	Code string
	DiscountTerms
	PlanID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RedemptionKind string

const (
	RedemptionService      RedemptionKind = "service"
	RedemptionSubscription RedemptionKind = "subscription"
)

// Redemption records one successful use of a discount code.
type Redemption struct {
	ID               string
	DiscountID       string
	Kind             RedemptionKind
	UserID           string
	ReferenceID      string
	OriginalAmount   decimal.Decimal
	DiscountedAmount decimal.Decimal
	CreatedAt        time.Time
}
