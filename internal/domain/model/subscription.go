package model

import (
	"time"

	"carservice-commerce/internal/domain"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

// Terminal statuses never transition again; a new Subscription is needed.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// CanTransition encodes the lifecycle graph ACTIVE -> {CANCELLED, EXPIRED}.
func (s SubscriptionStatus) CanTransition(to SubscriptionStatus) bool {
	if s != SubscriptionStatusActive {
		return false
	}
	return to == SubscriptionStatusCancelled || to == SubscriptionStatusExpired
}

// Subscription is a user's entitlement to a plan for a period.
// At most one ACTIVE subscription exists per user.
type Subscription struct {
	ID        string
	UserID    string
	PlanID    string
	Status    SubscriptionStatus
	AutoRenew bool
	StartDate time.Time
	EndDate   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription creates an ACTIVE subscription starting at now.
func NewSubscription(userID string, plan *SubscriptionPlan, autoRenew bool, now time.Time) (*Subscription, error) {
	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	if plan.IsZero() {
		return nil, domain.ErrMissingPlan
	}
	return &Subscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		PlanID:    plan.ID,
		Status:    SubscriptionStatusActive,
		AutoRenew: autoRenew,
		StartDate: now,
		EndDate:   now.Add(plan.Duration()),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Due reports whether the current period has ended.
func (s *Subscription) Due(now time.Time) bool {
	return !now.Before(s.EndDate)
}

// Transition returns a copy moved to the target status.
func (s *Subscription) Transition(to SubscriptionStatus, now time.Time) (*Subscription, error) {
	if !s.Status.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	cp := *s
	cp.Status = to
	if to == SubscriptionStatusCancelled {
		cp.AutoRenew = false
	}
	cp.UpdatedAt = now
	return &cp, nil
}

// Extend returns a copy whose period is pushed forward by one plan duration,
// counted from the previous end date so no paid time is lost.
func (s *Subscription) Extend(plan *SubscriptionPlan, now time.Time) *Subscription {
	cp := *s
	cp.EndDate = s.EndDate.Add(plan.Duration())
	cp.UpdatedAt = now
	return &cp
}
