package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodWallet        PaymentMethod = "wallet"        // debited through the ledger
	PaymentMethodDirect        PaymentMethod = "direct"        // settled outside the wallet
	PaymentMethodComplimentary PaymentMethod = "complimentary" // fully discounted, no money moved
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodWallet, PaymentMethodDirect, PaymentMethodComplimentary:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment ties a subscription charge to the ledger transaction that settled it.
type Payment struct {
	ID             string
	UserID         string
	SubscriptionID string
	Amount         decimal.Decimal
	Method         PaymentMethod
	Status         PaymentStatus
	TransactionID  *string // nil only for complimentary payments
	DiscountID     *string
	CreatedAt      time.Time
}
