package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointsPerUnit is the fixed loyalty conversion rate: 100 points = 1 currency unit.
const PointsPerUnit = 100

// WalletAccount holds a customer's stored balance.
// Balance and LoyaltyPoints are two views of one quantity and always move together.
type WalletAccount struct {
	// CustomerID is the unique key of the account.
	CustomerID string `json:"customer_id"`

	// Balance is the spendable currency amount. Never negative.
	Balance decimal.Decimal `json:"balance"`

	// LoyaltyPoints mirrors Balance at PointsPerUnit. Never negative.
	LoyaltyPoints int64 `json:"loyalty_points"`

	// Version increases by one on every mutation and guards concurrent writers.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PointsFor converts a currency amount to loyalty points, rounding to the cent first.
func PointsFor(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(decimal.NewFromInt(PointsPerUnit)).IntPart()
}

// TransactionKind is the direction of a wallet mutation.
type TransactionKind string

const (
	TransactionDebit  TransactionKind = "debit"
	TransactionCredit TransactionKind = "credit"
)

// WalletTransaction is one append-only ledger entry.
// Once written it is never mutated or deleted; corrections are new compensating entries.
//
// For a debit: NewBalance == max(0, PreviousBalance - Amount).
type WalletTransaction struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Kind       TransactionKind `json:"kind"`

	// Amount is the requested mutation amount (always positive).
	Amount decimal.Decimal `json:"amount"`

	// PointsDelta is the signed change actually applied to LoyaltyPoints.
	PointsDelta int64 `json:"points_delta"`

	// Reference links the entry to its cause: a booking id, a top-up note,
	// or "reversal:<transaction id>" for compensating entries.
	Reference string `json:"reference"`

	// IdempotencyKey, when set, is unique across all entries.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Sequence is the account version this entry produced. Entries of one
	// account are totally ordered by it.
	Sequence int64 `json:"sequence"`

	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	PreviousPoints  int64           `json:"previous_points"`
	NewPoints       int64           `json:"new_points"`

	CreatedAt time.Time `json:"created_at"`
}

// AppliedAmount is the balance change this entry actually caused, which can be
// less than Amount when a debit was clamped at zero.
func (t WalletTransaction) AppliedAmount() decimal.Decimal {
	return t.NewBalance.Sub(t.PreviousBalance).Abs()
}
