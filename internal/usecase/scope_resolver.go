package usecase

import (
	"context"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

// PurchaseScope is everything a purchase falls under: the service itself and
// its category with every ancestor.
type PurchaseScope struct {
	ServiceID   string
	CategoryIDs []string
}

// ScopeResolver answers which discounts apply to which purchases. It never
// writes.
type ScopeResolver struct {
	services repository.ServiceRepository
	guard    *CycleGuard
}

func NewScopeResolver(services repository.ServiceRepository, guard *CycleGuard) *ScopeResolver {
	return &ScopeResolver{services: services, guard: guard}
}

// ResolvePurchase expands a purchase into its scope. A service always
// contributes its stored category; a supplied category that disagrees with
// it is domain.ErrInvalidArgument.
func (r *ScopeResolver) ResolvePurchase(ctx context.Context, tx repository.Tx, serviceID, categoryID string) (PurchaseScope, error) {
	scope := PurchaseScope{ServiceID: serviceID}
	if serviceID != "" {
		svc, err := r.services.FindByID(ctx, tx, serviceID)
		if err != nil {
			return scope, err
		}
		if categoryID != "" && categoryID != svc.CategoryID {
			return scope, domain.ErrInvalidArgument
		}
		categoryID = svc.CategoryID
	}
	if categoryID == "" {
		return scope, nil
	}
	chain, err := r.guard.Chain(ctx, tx, categoryID)
	if err != nil {
		return scope, err
	}
	for _, c := range chain {
		scope.CategoryIDs = append(scope.CategoryIDs, c.ID)
	}
	return scope, nil
}

// Matches reports whether d applies to the purchase. An empty discount scope
// is universal.
func (r *ScopeResolver) Matches(ctx context.Context, tx repository.Tx, d *model.Discount, serviceID, categoryID string) (bool, error) {
	if d.Universal() {
		return true, nil
	}
	scope, err := r.ResolvePurchase(ctx, tx, serviceID, categoryID)
	if err != nil {
		return false, err
	}
	if scope.ServiceID != "" && contains(d.ServiceIDs, scope.ServiceID) {
		return true, nil
	}
	for _, id := range scope.CategoryIDs {
		if contains(d.CategoryIDs, id) {
			return true, nil
		}
	}
	return false, nil
}

// MatchesPlan reports whether a subscription discount applies to planID.
func (r *ScopeResolver) MatchesPlan(d *model.SubscriptionDiscount, planID string) bool {
	return d.PlanID == planID
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
