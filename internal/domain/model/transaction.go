package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places stored for every amount.
const MoneyScale = 2

// IsMoney reports whether d can be stored without rounding.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionPayment    TransactionType = "payment"
	TransactionRefund     TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionWithdrawal, TransactionPayment, TransactionRefund:
		return true
	}
	return false
}

// IsCredit reports whether the type increases a wallet balance.
func (t TransactionType) IsCredit() bool {
	return t == TransactionDeposit || t == TransactionRefund
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// Terminal reports whether no further transition is legal. A completed
// transaction may still move to refunded exactly once.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionFailed || s == TransactionRefunded
}

// Transaction is an append-only ledger row. Amount is always a positive
// magnitude; the sign comes from Type.
type Transaction struct {
	ID                    string // ULID, time ordered
	WalletID              *string
	UserID                string
	Type                  TransactionType
	Amount                decimal.Decimal
	Status                TransactionStatus
	OriginalTransactionID *string // set on refunds
	IdempotencyKey        *string
	Metadata              map[string]string
	CreatedAt             time.Time
}

// Applied reports whether the transaction moved money on its wallet.
// A refunded transaction was applied before being compensated.
func (t *Transaction) Applied() bool {
	return t.Status == TransactionCompleted || t.Status == TransactionRefunded
}

// SignedAmount is the effect on the wallet balance of an applied transaction.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if !t.Applied() || t.WalletID == nil {
		return decimal.Zero
	}
	if t.Type.IsCredit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Refundable reports whether a refund may be issued against this transaction.
func (t *Transaction) Refundable() bool {
	return t.Status == TransactionCompleted &&
		(t.Type == TransactionPayment || t.Type == TransactionWithdrawal)
}
