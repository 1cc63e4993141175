package usecase

import (
	"context"
	"errors"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/logging"

	"github.com/rs/zerolog"
)

// PlanUseCase reads and seeds subscription plans. Plans are immutable
// reference data; there is no update path.
type PlanUseCase struct {
	repo repository.SubscriptionPlanRepository
	log  *zerolog.Logger
}

// NewPlanUseCase constructs a PlanUseCase.
func NewPlanUseCase(repo repository.SubscriptionPlanRepository, logger *zerolog.Logger) *PlanUseCase {
	return &PlanUseCase{repo: repo, log: logger}
}

// Create validates and saves a plan.
func (uc *PlanUseCase) Create(ctx context.Context, plan *model.SubscriptionPlan) (*model.SubscriptionPlan, error) {
	defer logging.TraceDuration(uc.log, "PlanUseCase.Create")()
	p, err := model.NewSubscriptionPlan(plan.ID, plan.Name, plan.Price, plan.DurationDays, plan.Features)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get retrieves a plan by ID.
func (uc *PlanUseCase) Get(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	return uc.repo.FindByID(ctx, repository.NoTX, id)
}

// List returns all plans.
func (uc *PlanUseCase) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	defer logging.TraceDuration(uc.log, "PlanUseCase.List")()
	return uc.repo.ListAll(ctx, repository.NoTX)
}

// EnsurePlans saves every plan whose id is not stored yet and returns how
// many were created.
func (uc *PlanUseCase) EnsurePlans(ctx context.Context, plans []*model.SubscriptionPlan) (int, error) {
	created := 0
	for _, p := range plans {
		_, err := uc.repo.FindByID(ctx, repository.NoTX, p.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrPlanNotFound) {
			return created, err
		}
		if _, err := uc.Create(ctx, p); err != nil {
			return created, err
		}
		uc.log.Info().Str("plan_id", p.ID).Msg("plan seeded")
		created++
	}
	return created, nil
}
