// Package apperr defines the typed error taxonomy returned by the checkout engine.
//
// Every failure the engine reports to its caller carries a Kind. Callers test
// for a kind with errors.Is:
//
//	if errors.Is(err, apperr.InsufficientFunds) { ... }
//
// and turn it into a user-facing string with UserMessage. The engine itself
// never delivers notifications.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind identifies a class of failure. A Kind is itself an error so it can be
// used as an errors.Is target.
type Kind string

const (
	InvalidInput               Kind = "invalid_input"
	EmptyCart                  Kind = "empty_cart"
	MissingCustomerInfo        Kind = "missing_customer_info"
	MissingSchedule            Kind = "missing_schedule"
	MissingStaff               Kind = "missing_staff"
	MissingPaymentMethod       Kind = "missing_payment_method"
	UnauthenticatedPaymentMode Kind = "unauthenticated_payment_mode"
	InsufficientFunds          Kind = "insufficient_funds"
	MismatchedTotal            Kind = "mismatched_total"
	ExceedsWalletBalance       Kind = "exceeds_wallet_balance"
	AccountNotFound            Kind = "account_not_found"
	LedgerWriteFailed          Kind = "ledger_write_failed"
	PersistenceFailed          Kind = "persistence_failed"
	NotFound                   Kind = "not_found"
	InvalidTransition          Kind = "invalid_transition"
	Unauthenticated            Kind = "unauthenticated"
)

func (k Kind) Error() string { return string(k) }

// Error is a failure of a known Kind.
type Error struct {
	Kind    Kind
	Message string

	// Shortfall is set for InsufficientFunds: how much the wallet is short.
	Shortfall decimal.Decimal

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = UserMessage(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a Kind target against e.Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Insufficient returns an InsufficientFunds error carrying the shortfall.
func Insufficient(shortfall decimal.Decimal) *Error {
	return &Error{
		Kind:      InsufficientFunds,
		Message:   fmt.Sprintf("wallet balance is short by %s", shortfall.StringFixed(2)),
		Shortfall: shortfall,
	}
}

// KindOf returns the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// IsValidation reports whether kind is a pre-submission validation failure,
// i.e. one that is returned to the user and never retried by the engine.
func IsValidation(kind Kind) bool {
	switch kind {
	case InvalidInput, EmptyCart, MissingCustomerInfo, MissingSchedule, MissingStaff,
		MissingPaymentMethod, UnauthenticatedPaymentMode, InsufficientFunds,
		MismatchedTotal, ExceedsWalletBalance:
		return true
	}
	return false
}

var userMessages = map[Kind]string{
	InvalidInput:               "Some of the booking details are invalid.",
	EmptyCart:                  "Select at least one service or product.",
	MissingCustomerInfo:        "Enter the customer's name and an email or phone number.",
	MissingSchedule:            "Choose a date and time slot.",
	MissingStaff:               "Assign a staff member.",
	MissingPaymentMethod:       "Choose a payment method.",
	UnauthenticatedPaymentMode: "Sign in to pay with your wallet, or switch to cash.",
	InsufficientFunds:          "Your wallet balance does not cover this booking. Switch payment method or top up.",
	MismatchedTotal:            "Wallet and cash amounts must add up to the total.",
	ExceedsWalletBalance:       "The wallet amount is more than your balance.",
	AccountNotFound:            "No wallet exists for this customer.",
	LedgerWriteFailed:          "Your booking is confirmed. Payment will be reconciled shortly.",
	PersistenceFailed:          "We could not save the booking. Please try again.",
	NotFound:                   "Not found.",
	InvalidTransition:          "That status change is not allowed.",
	Unauthenticated:            "Sign in to continue.",
}

// UserMessage returns the notification string for kind.
func UserMessage(kind Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return "Something went wrong."
}
