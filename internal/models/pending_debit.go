package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingDebitStatus is the reconciliation state of an outbox row.
type PendingDebitStatus string

const (
	PendingDebitPending  PendingDebitStatus = "pending"
	PendingDebitSettled  PendingDebitStatus = "settled"
	PendingDebitDead     PendingDebitStatus = "dead"
	PendingDebitResolved PendingDebitStatus = "resolved"
)

// PendingDebit is the outbox row for a booking's wallet debit.
// It is written in the same transaction as the booking and retried until the
// ledger accepts it or staff resolve it manually.
type PendingDebit struct {
	ID         string             `json:"id"`
	BookingID  string             `json:"booking_id"`
	CustomerID string             `json:"customer_id"`
	Amount     decimal.Decimal    `json:"amount"`
	Status     PendingDebitStatus `json:"status"`

	// Attempts counts failed settle attempts.
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// TransactionID is set once settled.
	TransactionID string `json:"transaction_id,omitempty"`

	// Note is the staff note recorded on manual resolution.
	Note string `json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdempotencyKey is the ledger key that makes repeated settle attempts safe.
func (p PendingDebit) IdempotencyKey() string {
	return "booking:" + p.BookingID
}
