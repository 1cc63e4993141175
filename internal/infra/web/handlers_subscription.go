package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"carservice-commerce/internal/application"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/usecase"
)

const idempotencyHeader = "Idempotency-Key"

type payRequest struct {
	UserID       string `json:"user_id"`
	PlanID       string `json:"plan_id"`
	DiscountCode string `json:"discount_code"`
	Method       string `json:"method"`
	AutoRenew    bool   `json:"auto_renew"`
}

func (s *Server) paySubscription(w http.ResponseWriter, r *http.Request) {
	var in payRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.facade.PayForSubscription(r.Context(), application.PayRequest{
		UserID:         in.UserID,
		PlanID:         in.PlanID,
		DiscountCode:   in.DiscountCode,
		Method:         model.PaymentMethod(in.Method),
		AutoRenew:      in.AutoRenew,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceipt(rec))
}

func (s *Server) activeSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.facade.ActiveSubscription(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscription(sub))
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.facade.CancelSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscription(sub))
}

type renewalView struct {
	Subscription *subscriptionView `json:"subscription"`
	Payment      *paymentView      `json:"payment"`
	Renewed      bool              `json:"renewed"`
}

// renewSubscription answers 400 insufficient_funds when the wallet was
// short. The expiry that caused is committed regardless.
func (s *Server) renewSubscription(w http.ResponseWriter, r *http.Request) {
	res, err := s.facade.RenewSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renewalFrom(res))
}

func renewalFrom(res *usecase.RenewalResult) renewalView {
	return renewalView{
		Subscription: toSubscription(res.Subscription),
		Payment:      toPayment(res.Payment),
		Renewed:      res.Renewed,
	}
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.DeleteSubscription(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.facade.ListPlans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[planView]{Data: mapAll(plans, toPlan)})
}
