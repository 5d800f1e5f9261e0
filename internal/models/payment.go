package models

import "github.com/shopspring/decimal"

// PaymentMode is how a booking is paid.
type PaymentMode string

const (
	PaymentCash   PaymentMode = "cash"
	PaymentWallet PaymentMode = "wallet"
	PaymentMixed  PaymentMode = "mixed"
)

// Valid reports whether m is one of the known payment modes.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentCash, PaymentWallet, PaymentMixed:
		return true
	}
	return false
}

// UsesWallet reports whether the mode can draw on the customer's wallet.
func (m PaymentMode) UsesWallet() bool {
	return m == PaymentWallet || m == PaymentMixed
}

// PaymentAllocation splits a grand total between instruments.
//
// Invariant: Wallet + Cash == grand total (within 0.01) and Wallet <= wallet
// balance at allocation time.
type PaymentAllocation struct {
	Mode   PaymentMode     `json:"mode"`
	Wallet decimal.Decimal `json:"wallet"`
	Cash   decimal.Decimal `json:"cash"`
}

// Total returns the sum of all instruments.
func (a PaymentAllocation) Total() decimal.Decimal {
	return a.Wallet.Add(a.Cash)
}
