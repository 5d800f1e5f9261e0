package models

import "time"

// BookingStatus is the operational lifecycle state of a booking.
type BookingStatus string

const (
	BookingScheduled BookingStatus = "scheduled"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
)

// CanTransitionTo reports whether staff may move a booking from s to next.
// Only scheduled bookings move; every other state is terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s != BookingScheduled {
		return false
	}
	switch next {
	case BookingCompleted, BookingCancelled, BookingNoShow:
		return true
	}
	return false
}

// LedgerStatus tracks whether the wallet portion of a booking has been applied.
type LedgerStatus string

const (
	// LedgerNotRequired means the booking has no wallet portion.
	LedgerNotRequired LedgerStatus = "not_required"
	// LedgerPending means the wallet debit is waiting for reconciliation.
	LedgerPending LedgerStatus = "pending"
	// LedgerSettled means the wallet debit was written to the ledger.
	LedgerSettled LedgerStatus = "settled"
	// LedgerResolved means the debit was settled out of band by staff.
	LedgerResolved LedgerStatus = "resolved"
	// LedgerShort means the debit was written but the balance ran out first, so it
	// removed less than the wallet portion. The rest is collected out of band.
	LedgerShort LedgerStatus = "short"
)

// Customer is the identity snapshot stored on a booking.
type Customer struct {
	// ID is empty for guests.
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Schedule is the appointment slot.
type Schedule struct {
	// Date is the calendar day, formatted 2006-01-02.
	Date string `json:"date"`
	// TimeSlot is the start time label, e.g. "14:30".
	TimeSlot string `json:"time_slot"`
}

// StaffAssignment assigns a staff member, optionally to one service in the cart.
type StaffAssignment struct {
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name,omitempty"`
	ServiceID string `json:"service_id,omitempty"`
}

// Booking is the immutable financial record of a checkout.
// Only Status and Notes change after creation; the ledger fields are
// reconciliation metadata stamped when the wallet debit lands.
type Booking struct {
	// ID is the unique identifier (UUID format).
	ID string `json:"id"`

	// Reference is the human-readable, globally unique booking reference.
	Reference string `json:"reference"`

	Customer   Customer          `json:"customer"`
	Items      []LineItem        `json:"items"`
	Modifiers  ChargeModifiers   `json:"modifiers"`
	Breakdown  PriceBreakdown    `json:"breakdown"`
	Allocation PaymentAllocation `json:"allocation"`
	Staff      []StaffAssignment `json:"staff"`
	Schedule   Schedule          `json:"schedule"`

	Status BookingStatus `json:"status"`
	Notes  string        `json:"notes,omitempty"`

	// LedgerStatus and WalletTransactionID record the wallet debit outcome.
	LedgerStatus        LedgerStatus `json:"ledger_status"`
	WalletTransactionID string       `json:"wallet_transaction_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is what the identity provider supplies for the current session.
// IsAuthenticated=false means guest.
type Identity struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	CustomerID      string `json:"customer_id,omitempty"`
	Name            string `json:"name,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
}

// Guest is the identity of an unauthenticated session.
var Guest = Identity{}
