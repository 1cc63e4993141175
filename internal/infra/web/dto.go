package web

import (
	"time"

	"github.com/shopspring/decimal"

	"carservice-commerce/internal/application"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/usecase"
)

// Amounts travel as decimal strings.

type walletView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toWallet(w *model.Wallet) walletView {
	return walletView{ID: w.ID, UserID: w.UserID, Balance: w.Balance, Version: w.Version, UpdatedAt: w.UpdatedAt}
}

type transactionView struct {
	ID                    string            `json:"id"`
	WalletID              *string           `json:"wallet_id,omitempty"`
	UserID                string            `json:"user_id"`
	Type                  string            `json:"type"`
	Amount                decimal.Decimal   `json:"amount"`
	Status                string            `json:"status"`
	OriginalTransactionID *string           `json:"original_transaction_id,omitempty"`
	IdempotencyKey        *string           `json:"idempotency_key,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
}

func toTransaction(t *model.Transaction) transactionView {
	return transactionView{
		ID:                    t.ID,
		WalletID:              t.WalletID,
		UserID:                t.UserID,
		Type:                  string(t.Type),
		Amount:                t.Amount,
		Status:                string(t.Status),
		OriginalTransactionID: t.OriginalTransactionID,
		IdempotencyKey:        t.IdempotencyKey,
		Metadata:              t.Metadata,
		CreatedAt:             t.CreatedAt,
	}
}

type subscriptionView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	Status    string    `json:"status"`
	AutoRenew bool      `json:"auto_renew"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

func toSubscription(s *model.Subscription) *subscriptionView {
	if s == nil {
		return nil
	}
	return &subscriptionView{
		ID:        s.ID,
		UserID:    s.UserID,
		PlanID:    s.PlanID,
		Status:    string(s.Status),
		AutoRenew: s.AutoRenew,
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
	}
}

type paymentView struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	DiscountID    *string         `json:"discount_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toPayment(p *model.Payment) *paymentView {
	if p == nil {
		return nil
	}
	return &paymentView{
		ID:            p.ID,
		Amount:        p.Amount,
		Method:        string(p.Method),
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		DiscountID:    p.DiscountID,
		CreatedAt:     p.CreatedAt,
	}
}

type discountResultView struct {
	DiscountID       string          `json:"discount_id"`
	Code             string          `json:"code"`
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	DiscountedAmount decimal.Decimal `json:"discounted_amount"`
}

func toDiscountResult(r *usecase.DiscountResult) *discountResultView {
	if r == nil {
		return nil
	}
	return &discountResultView{
		DiscountID:       r.DiscountID,
		Code:             r.Code,
		OriginalAmount:   r.OriginalAmount,
		DiscountedAmount: r.DiscountedAmount,
	}
}

type receiptView struct {
	Subscription *subscriptionView   `json:"subscription"`
	Payment      *paymentView        `json:"payment"`
	Discount     *discountResultView `json:"discount,omitempty"`
}

func toReceipt(r *application.Receipt) receiptView {
	return receiptView{
		Subscription: toSubscription(r.Subscription),
		Payment:      toPayment(r.Payment),
		Discount:     toDiscountResult(r.Discount),
	}
}

type planView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	Features     []string        `json:"features"`
}

func toPlan(p *model.SubscriptionPlan) planView {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return planView{ID: p.ID, Name: p.Name, Price: p.Price, DurationDays: p.DurationDays, Features: features}
}

type categoryView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parent_id"`
	Order    int     `json:"order"`
}

func toCategory(c *model.Category) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, Slug: c.Slug, ParentID: c.ParentID, Order: c.Order}
}

// termsInput is the JSON shape shared by both discount kinds.
type termsInput struct {
	Type        string           `json:"type"`
	Value       decimal.Decimal  `json:"value"`
	MaxDiscount *decimal.Decimal `json:"max_discount"`
	MaxUses     *int64           `json:"max_uses"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	MinAmount   *decimal.Decimal `json:"min_amount"`
	IsActive    *bool            `json:"is_active"`
}

func (in termsInput) terms() model.DiscountTerms {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return model.DiscountTerms{
		Type:        model.DiscountType(in.Type),
		Value:       in.Value,
		MaxDiscount: in.MaxDiscount,
		MaxUses:     in.MaxUses,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		MinAmount:   in.MinAmount,
		IsActive:    active,
	}
}

type termsView struct {
	Type        string           `json:"type"`
	Value       decimal.Decimal  `json:"value"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
	MaxUses     *int64           `json:"max_uses,omitempty"`
	UsesCount   int64            `json:"uses_count"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	MinAmount   *decimal.Decimal `json:"min_amount,omitempty"`
	IsActive    bool             `json:"is_active"`
	Version     int64            `json:"version"`
}

func toTerms(t model.DiscountTerms) termsView {
	return termsView{
		Type:        string(t.Type),
		Value:       t.Value,
		MaxDiscount: t.MaxDiscount,
		MaxUses:     t.MaxUses,
		UsesCount:   t.UsesCount,
		StartDate:   t.StartDate,
		EndDate:     t.EndDate,
		MinAmount:   t.MinAmount,
		IsActive:    t.IsActive,
		Version:     t.Version,
	}
}

type discountView struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	ServiceIDs  []string `json:"service_ids"`
	CategoryIDs []string `json:"category_ids"`
	termsView
}

func toDiscount(d *model.Discount) discountView {
	v := discountView{ID: d.ID, Code: d.Code, ServiceIDs: d.ServiceIDs, CategoryIDs: d.CategoryIDs, termsView: toTerms(d.DiscountTerms)}
	if v.ServiceIDs == nil {
		v.ServiceIDs = []string{}
	}
	if v.CategoryIDs == nil {
		v.CategoryIDs = []string{}
	}
	return v
}

type subscriptionDiscountView struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	PlanID string `json:"plan_id"`
	termsView
}

func toSubscriptionDiscount(d *model.SubscriptionDiscount) subscriptionDiscountView {
	return subscriptionDiscountView{ID: d.ID, Code: d.Code, PlanID: d.PlanID, termsView: toTerms(d.DiscountTerms)}
}

// discountPatchInput maps onto usecase.DiscountPatch; absent fields stay.
type discountPatchInput struct {
	Code         *string          `json:"code"`
	Type         *string          `json:"type"`
	Value        *decimal.Decimal `json:"value"`
	MaxDiscount  *decimal.Decimal `json:"max_discount"`
	MaxUses      *int64           `json:"max_uses"`
	ClearMaxUses bool             `json:"clear_max_uses"`
	StartDate    *time.Time       `json:"start_date"`
	EndDate      *time.Time       `json:"end_date"`
	MinAmount    *decimal.Decimal `json:"min_amount"`
	IsActive     *bool            `json:"is_active"`
	ServiceIDs   *[]string        `json:"service_ids"`
	CategoryIDs  *[]string        `json:"category_ids"`
}

func (in discountPatchInput) patch() usecase.DiscountPatch {
	p := usecase.DiscountPatch{
		Code:         in.Code,
		Value:        in.Value,
		MaxDiscount:  in.MaxDiscount,
		MaxUses:      in.MaxUses,
		ClearMaxUses: in.ClearMaxUses,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		MinAmount:    in.MinAmount,
		IsActive:     in.IsActive,
		ServiceIDs:   in.ServiceIDs,
		CategoryIDs:  in.CategoryIDs,
	}
	if in.Type != nil {
		t := model.DiscountType(*in.Type)
		p.Type = &t
	}
	return p
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

func mapAll[S any, T any](in []S, f func(S) T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
