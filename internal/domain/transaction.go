package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePayment TransactionType = "PAYMENT"
	TransactionTypeRefund  TransactionType = "REFUND"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is a financial ledger entry, correlated to the payment
// processor via the checkout session id. Append-mostly; rows are never
// deleted.
type Transaction struct {
	ID              string
	UserID          string
	Type            TransactionType
	Amount          decimal.Decimal
	Status          TransactionStatus
	StripeSessionID string
	CreatedAt       time.Time
}
