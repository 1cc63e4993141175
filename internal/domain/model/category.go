package model

import (
	"strings"
	"time"

	"carservice-commerce/internal/domain"

	"github.com/google/uuid"
)

// MaxCategoryDepth bounds every ancestor walk over the category forest.
const MaxCategoryDepth = 64

// Category is a node of the service taxonomy. The parent graph is a forest.
type Category struct {
	ID        string
	Name      string
	Slug      string
	ParentID  *string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeSlug lower-cases and trims a slug.
func NormalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func NewCategory(name, slug string, parentID *string, order int) (*Category, error) {
	name = strings.TrimSpace(name)
	slug = NormalizeSlug(slug)
	if name == "" || slug == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	if parentID != nil && *parentID == id {
		return nil, domain.ErrCircularReference
	}
	return &Category{
		ID:        id,
		Name:      name,
		Slug:      slug,
		ParentID:  parentID,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Service is a bookable offering. It is the content that keeps a category
// from being deleted and the unit discounts are scoped to.
type Service struct {
	ID         string
	CategoryID string
	Name       string
}
