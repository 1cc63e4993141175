package usecase

import (
	"context"
	"errors"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

// CycleGuard keeps the category parent graph a forest. All walks are bounded
// by maxDepth hops and must run on the same tx as the write they validate.
type CycleGuard struct {
	categories repository.CategoryRepository
	services   repository.ServiceRepository
	maxDepth   int
}

func NewCycleGuard(categories repository.CategoryRepository, services repository.ServiceRepository, maxDepth int) *CycleGuard {
	if maxDepth <= 0 {
		maxDepth = model.MaxCategoryDepth
	}
	return &CycleGuard{categories: categories, services: services, maxDepth: maxDepth}
}

// Chain returns the category and its ancestors, nearest first. A chain
// longer than the depth bound can only come from a corrupted tree and is
// reported as domain.ErrCircularReference.
func (g *CycleGuard) Chain(ctx context.Context, tx repository.Tx, id string) ([]*model.Category, error) {
	chain := make([]*model.Category, 0, 8)
	cur := id
	for hops := 0; ; hops++ {
		if hops >= g.maxDepth {
			return nil, domain.ErrCircularReference
		}
		c, err := g.categories.FindByID(ctx, tx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, c)
		if c.ParentID == nil {
			return chain, nil
		}
		cur = *c.ParentID
	}
}

// CanReparent reports whether nodeID may be moved under newParentID. An
// empty newParentID makes the node a root and is always allowed.
func (g *CycleGuard) CanReparent(ctx context.Context, tx repository.Tx, nodeID, newParentID string) (bool, error) {
	if newParentID == "" {
		return true, nil
	}
	if newParentID == nodeID {
		return false, nil
	}
	chain, err := g.Chain(ctx, tx, newParentID)
	if err != nil {
		if errors.Is(err, domain.ErrCategoryNotFound) {
			return false, domain.ErrParentNotFound
		}
		if errors.Is(err, domain.ErrCircularReference) {
			return false, nil
		}
		return false, err
	}
	for _, c := range chain {
		if c.ID == nodeID {
			return false, nil
		}
	}
	// The moved subtree hangs below its new parent; its deepest leaf must
	// still be reachable by Chain.
	budget := g.maxDepth - len(chain)
	if budget < 1 {
		return false, nil
	}
	height, err := g.subtreeHeight(ctx, tx, nodeID, budget)
	if err != nil {
		return false, err
	}
	return height <= budget, nil
}

// subtreeHeight counts the levels of the subtree rooted at id, the root
// included. It stops once limit is exceeded and returns limit+1.
func (g *CycleGuard) subtreeHeight(ctx context.Context, tx repository.Tx, id string, limit int) (int, error) {
	level := []string{id}
	height := 0
	for len(level) > 0 {
		height++
		if height > limit {
			return height, nil
		}
		var next []string
		for _, parent := range level {
			children, err := g.categories.ChildIDs(ctx, tx, parent)
			if err != nil {
				return 0, err
			}
			next = append(next, children...)
		}
		level = next
	}
	return height, nil
}

// CheckReparent is CanReparent as an error.
func (g *CycleGuard) CheckReparent(ctx context.Context, tx repository.Tx, nodeID, newParentID string) error {
	ok, err := g.CanReparent(ctx, tx, nodeID, newParentID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCircularReference
	}
	return nil
}

// CheckDeletable allows deleting only leaf categories without services.
func (g *CycleGuard) CheckDeletable(ctx context.Context, tx repository.Tx, id string) error {
	if _, err := g.categories.FindByID(ctx, tx, id); err != nil {
		return err
	}
	children, err := g.categories.CountChildren(ctx, tx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return domain.ErrHasDependents
	}
	services, err := g.services.CountByCategory(ctx, tx, id)
	if err != nil {
		return err
	}
	if services > 0 {
		return domain.ErrHasDependents
	}
	return nil
}
