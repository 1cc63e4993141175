package model

import (
	"time"

	"carservice-commerce/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionPlan is immutable reference data: a price, a duration and the
// set of capability tags granted while a subscription on it is active.
type SubscriptionPlan struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	DurationDays int
	Features     []string
	CreatedAt    time.Time
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }

// Duration is the length of one billing period.
func (p *SubscriptionPlan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, price decimal.Decimal, durationDays int, features []string) (*SubscriptionPlan, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if name == "" || durationDays <= 0 || price.IsNegative() || !IsMoney(price) {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		ID:           id,
		Name:         name,
		Price:        price,
		DurationDays: durationDays,
		Features:     features,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
