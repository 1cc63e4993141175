package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"carservice-commerce/internal/application"
	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/usecase"
)

type categoryInput struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parent_id"`
	Order    int     `json:"order"`
}

// categoryPatchInput: parent_id "" moves the category to the root.
type categoryPatchInput struct {
	Name     *string `json:"name"`
	Slug     *string `json:"slug"`
	Order    *int    `json:"order"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.facade.CreateCategory(r.Context(), application.CategoryInput{
		Name:     in.Name,
		Slug:     in.Slug,
		ParentID: in.ParentID,
		Order:    in.Order,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategory(c))
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryPatchInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.facade.UpdateCategory(r.Context(), chi.URLParam(r, "id"), application.CategoryPatch{
		Name:     in.Name,
		Slug:     in.Slug,
		Order:    in.Order,
		ParentID: in.ParentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategory(c))
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) categoryAncestors(w http.ResponseWriter, r *http.Request) {
	chain, err := s.facade.CategoryAncestors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[categoryView]{Data: mapAll(chain, toCategory)})
}

type discountInput struct {
	Code        string   `json:"code"`
	ServiceIDs  []string `json:"service_ids"`
	CategoryIDs []string `json:"category_ids"`
	termsInput
}

func (s *Server) createDiscount(w http.ResponseWriter, r *http.Request) {
	var in discountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.facade.CreateDiscount(r.Context(), &model.Discount{
		Code:          in.Code,
		DiscountTerms: in.terms(),
		ServiceIDs:    in.ServiceIDs,
		CategoryIDs:   in.CategoryIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDiscount(d))
}

func (s *Server) updateDiscount(w http.ResponseWriter, r *http.Request) {
	var in discountPatchInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.facade.UpdateDiscount(r.Context(), chi.URLParam(r, "id"), in.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscount(d))
}

type subscriptionDiscountInput struct {
	Code   string `json:"code"`
	PlanID string `json:"plan_id"`
	termsInput
}

func (s *Server) createSubscriptionDiscount(w http.ResponseWriter, r *http.Request) {
	var in subscriptionDiscountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.facade.CreateSubscriptionDiscount(r.Context(), &model.SubscriptionDiscount{
		Code:          in.Code,
		DiscountTerms: in.terms(),
		PlanID:        in.PlanID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionDiscount(d))
}

func (s *Server) updateSubscriptionDiscount(w http.ResponseWriter, r *http.Request) {
	var in discountPatchInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.ServiceIDs != nil || in.CategoryIDs != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	d, err := s.facade.UpdateSubscriptionDiscount(r.Context(), chi.URLParam(r, "id"), in.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDiscount(d))
}

func (s *Server) quoteDiscount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	res, err := s.facade.QuoteDiscount(r.Context(), chi.URLParam(r, "code"), usecase.PurchaseContext{
		Amount:     amount,
		ServiceID:  q.Get("service_id"),
		CategoryID: q.Get("category_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscountResult(res))
}

type redeemInput struct {
	Amount      decimal.Decimal `json:"amount"`
	ServiceID   string          `json:"service_id"`
	CategoryID  string          `json:"category_id"`
	ReferenceID string          `json:"reference_id"`
}

func (s *Server) redeemDiscount(w http.ResponseWriter, r *http.Request) {
	var in redeemInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.facade.RedeemDiscount(r.Context(), chi.URLParam(r, "code"), usecase.PurchaseContext{
		Amount:      in.Amount,
		ServiceID:   in.ServiceID,
		CategoryID:  in.CategoryID,
		ReferenceID: in.ReferenceID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscountResult(res))
}
