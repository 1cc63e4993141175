package model

import (
	"time"

	"carservice-commerce/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's stored balance. Balance is only ever changed by the
// ledger, together with the Transaction that explains the change; Version
// increases by one on every balance write.
type Wallet struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewWallet(userID string) (*Wallet, error) {
	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasSufficientFunds reports whether amount can be debited.
func (w *Wallet) HasSufficientFunds(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// Applied returns the balance that results from applying a transaction of the
// given type and amount, or ErrInsufficientFunds for an overdraft.
func (w *Wallet) Applied(t TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	if t.IsCredit() {
		return w.Balance.Add(amount), nil
	}
	if !w.HasSufficientFunds(amount) {
		return decimal.Zero, domain.ErrInsufficientFunds
	}
	return w.Balance.Sub(amount), nil
}
