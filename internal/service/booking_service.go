package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/calculator"
	"github.com/mmynk/salonwise/internal/ledger"
	"github.com/mmynk/salonwise/internal/metrics"
	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/storage"
)

// ReferencePrefix starts every booking reference.
const ReferencePrefix = "BK-"

// PaymentChoice is the payment the customer picked at checkout.
// Wallet and Cash are only read for Mixed; Cash and Wallet modes are allocated here.
type PaymentChoice struct {
	Mode   models.PaymentMode `json:"mode"`
	Wallet decimal.Decimal    `json:"wallet"`
	Cash   decimal.Decimal    `json:"cash"`
}

// CreateBookingRequest is everything a checkout submits.
type CreateBookingRequest struct {
	Identity  models.Identity          `json:"-"`
	Customer  models.Customer          `json:"customer"`
	Items     []models.LineItem        `json:"items"`
	Modifiers models.ChargeModifiers   `json:"modifiers"`
	Schedule  models.Schedule          `json:"schedule"`
	Staff     []models.StaffAssignment `json:"staff"`
	Payment   PaymentChoice            `json:"payment"`
}

// CreateBookingResult is a successful checkout. Warning is set when the booking
// was saved but its wallet debit is still waiting for reconciliation, or when
// the debit covered less than the wallet portion (Warning.Shortfall).
type CreateBookingResult struct {
	Booking     *models.Booking           `json:"booking"`
	Transaction *models.WalletTransaction `json:"transaction,omitempty"`
	Warning     *apperr.Error             `json:"-"`
}

// BookingService assembles, persists and manages bookings.
type BookingService struct {
	store      storage.BookingStore
	wallets    *ledger.Ledger
	reconciler *ledger.Reconciler
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewBookingService creates a BookingService. m may be nil.
func NewBookingService(store storage.BookingStore, wallets *ledger.Ledger, reconciler *ledger.Reconciler, m *metrics.Metrics) *BookingService {
	return &BookingService{
		store:      store,
		wallets:    wallets,
		reconciler: reconciler,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateBooking validates a checkout, stores the booking and debits the wallet portion.
//
// Validation stops at the first failure, in this order: cart, customer,
// schedule, staff, payment method, sign-in for wallet modes, pricing, allocation.
// Once the booking is stored the call succeeds; a failed wallet debit becomes
// Result.Warning and is retried by the reconciler.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	result, err := s.createBooking(ctx, req)
	if err != nil {
		kind := apperr.KindOf(err)
		s.metrics.BookingFailed(string(kind))
		if apperr.IsValidation(kind) {
			slog.Info("CreateBooking rejected", "kind", kind, "error", err)
		} else {
			slog.Error("CreateBooking failed", "kind", kind, "error", err)
		}
		return nil, err
	}
	return result, nil
}

func (s *BookingService) createBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	if len(req.Items) == 0 {
		return nil, apperr.New(apperr.EmptyCart, "cart is empty")
	}

	customer, ok := resolveCustomer(req.Identity, req.Customer)
	if !ok {
		return nil, apperr.New(apperr.MissingCustomerInfo, "customer name and an email or phone are required")
	}

	schedule := models.Schedule{
		Date:     strings.TrimSpace(req.Schedule.Date),
		TimeSlot: strings.TrimSpace(req.Schedule.TimeSlot),
	}
	if schedule.Date == "" || schedule.TimeSlot == "" {
		return nil, apperr.New(apperr.MissingSchedule, "date and time slot are required")
	}
	if _, err := time.Parse(time.DateOnly, schedule.Date); err != nil {
		return nil, apperr.New(apperr.InvalidInput, "date %q is not YYYY-MM-DD", schedule.Date)
	}

	if !hasStaff(req.Staff) {
		return nil, apperr.New(apperr.MissingStaff, "at least one staff member must be assigned")
	}

	mode := req.Payment.Mode
	if mode == "" {
		return nil, apperr.New(apperr.MissingPaymentMethod, "payment method is required")
	}
	if !mode.Valid() {
		return nil, apperr.New(apperr.InvalidInput, "unknown payment mode %q", mode)
	}
	if mode.UsesWallet() && !req.Identity.IsAuthenticated {
		return nil, apperr.New(apperr.UnauthenticatedPaymentMode, "%s payment requires a signed-in customer", mode)
	}

	breakdown, err := calculator.Compute(req.Items, req.Modifiers)
	if err != nil {
		return nil, err
	}
	if err := checkAssignments(req.Items, req.Staff, req.Modifiers.PerAssigneeTips); err != nil {
		return nil, err
	}

	allocation, err := s.allocate(ctx, req.Identity, req.Payment, breakdown.GrandTotal)
	if err != nil {
		return nil, err
	}

	now := s.now()
	booking := &models.Booking{
		ID:           uuid.New().String(),
		Reference:    ReferencePrefix + ulid.Make().String(),
		Customer:     customer,
		Items:        req.Items,
		Modifiers:    req.Modifiers,
		Breakdown:    breakdown,
		Allocation:   allocation,
		Staff:        req.Staff,
		Schedule:     schedule,
		Status:       models.BookingScheduled,
		LedgerStatus: models.LedgerNotRequired,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var pending *models.PendingDebit
	if allocation.Wallet.IsPositive() {
		booking.LedgerStatus = models.LedgerPending
		pending = &models.PendingDebit{
			CustomerID: customer.ID,
			Amount:     allocation.Wallet,
			Status:     models.PendingDebitPending,
		}
	}

	if err := s.store.CreateBooking(ctx, booking, pending); err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, err, "failed to save booking")
	}
	s.metrics.BookingCreated(string(allocation.Mode))

	slog.Info("Booking created",
		"booking_id", booking.ID,
		"reference", booking.Reference,
		"customer_id", customer.ID,
		"grand_total", breakdown.GrandTotal.StringFixed(2),
		"mode", allocation.Mode,
	)

	result := &CreateBookingResult{Booking: booking}
	if pending == nil {
		return result, nil
	}

	wtx, err := s.reconciler.Settle(ctx, pending)
	if err != nil {
		var warning *apperr.Error
		if !errors.As(err, &warning) {
			warning = apperr.Wrap(apperr.LedgerWriteFailed, err, "wallet debit deferred to reconciliation")
		}
		slog.Warn("Wallet debit deferred",
			"booking_id", booking.ID,
			"customer_id", customer.ID,
			"amount", allocation.Wallet.StringFixed(2),
			"error", err,
		)
		result.Warning = warning
		return result, nil
	}

	booking.LedgerStatus = models.LedgerSettled
	booking.WalletTransactionID = wtx.ID
	result.Transaction = wtx

	// Another debit can drain the wallet between allocation and settle.
	if shortfall := allocation.Wallet.Sub(wtx.AppliedAmount()); shortfall.IsPositive() {
		booking.LedgerStatus = models.LedgerShort
		result.Warning = &apperr.Error{
			Kind: apperr.LedgerWriteFailed,
			Message: fmt.Sprintf("wallet covered %s of %s; %s is still owed",
				wtx.AppliedAmount().StringFixed(2), allocation.Wallet.StringFixed(2), shortfall.StringFixed(2)),
			Shortfall: shortfall,
		}
		slog.Warn("Wallet debit settled short",
			"booking_id", booking.ID,
			"customer_id", customer.ID,
			"amount", allocation.Wallet.StringFixed(2),
			"shortfall", shortfall.StringFixed(2),
		)
	}
	return result, nil
}

// allocate builds the allocation for the chosen mode and checks it against the
// live wallet balance.
func (s *BookingService) allocate(ctx context.Context, id models.Identity, choice PaymentChoice, grandTotal decimal.Decimal) (models.PaymentAllocation, error) {
	balance := decimal.Zero
	if choice.Mode.UsesWallet() {
		account, err := s.wallets.Account(ctx, id.CustomerID)
		if err != nil {
			return models.PaymentAllocation{}, err
		}
		balance = account.Balance
	}

	alloc := models.PaymentAllocation{Mode: models.PaymentMixed, Wallet: choice.Wallet, Cash: choice.Cash}
	if choice.Mode != models.PaymentMixed {
		var err error
		alloc, err = calculator.Allocate(grandTotal, choice.Mode, balance)
		if err != nil {
			return models.PaymentAllocation{}, err
		}
	}

	if err := calculator.Validate(alloc, grandTotal, balance); err != nil {
		return models.PaymentAllocation{}, err
	}
	return alloc, nil
}

// resolveCustomer merges the submitted contact details with the session identity.
// Guests never carry a customer id.
func resolveCustomer(id models.Identity, c models.Customer) (models.Customer, bool) {
	c = models.Customer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
	if id.IsAuthenticated {
		c.ID = id.CustomerID
		if c.Name == "" {
			c.Name = id.Name
		}
		if c.Email == "" {
			c.Email = id.Email
		}
		if c.Phone == "" {
			c.Phone = id.Phone
		}
	}
	return c, c.Name != "" && (c.Email != "" || c.Phone != "")
}

func hasStaff(staff []models.StaffAssignment) bool {
	if len(staff) == 0 {
		return false
	}
	for _, a := range staff {
		if strings.TrimSpace(a.StaffID) == "" {
			return false
		}
	}
	return true
}

// checkAssignments verifies staff point at services in the cart and tips at assigned staff.
func checkAssignments(items []models.LineItem, staff []models.StaffAssignment, tips []models.AssigneeTip) error {
	services := make(map[string]bool)
	for _, item := range items {
		if item.Kind == models.ItemService {
			services[item.ID] = true
		}
	}
	assigned := make(map[string]bool, len(staff))
	for _, a := range staff {
		if a.ServiceID != "" && !services[a.ServiceID] {
			return apperr.New(apperr.InvalidInput, "staff %s is assigned to service %s which is not in the cart", a.StaffID, a.ServiceID)
		}
		assigned[a.StaffID] = true
	}
	for _, tip := range tips {
		if !assigned[tip.AssigneeID] {
			return apperr.New(apperr.InvalidInput, "tip for %s who is not assigned to this booking", tip.AssigneeID)
		}
	}
	return nil
}

// GetBooking retrieves a booking by ID.
func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	return booking, nil
}

// GetBookingByReference retrieves a booking by its reference.
func (s *BookingService) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	booking, err := s.store.GetBookingByReference(ctx, reference)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	return booking, nil
}

// ListCustomerBookings returns the signed-in customer's bookings, newest first.
func (s *BookingService) ListCustomerBookings(ctx context.Context, id models.Identity) ([]*models.Booking, error) {
	if !id.IsAuthenticated {
		return nil, apperr.New(apperr.Unauthenticated, "sign in to see your bookings")
	}
	bookings, err := s.store.ListBookingsByCustomer(ctx, id.CustomerID)
	if err != nil {
		return nil, storeError(err, "bookings")
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	return bookings, nil
}

// UpdateStatus moves a scheduled booking to completed, cancelled or no_show.
// A wallet debit is not reversed automatically on cancellation.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID string, status models.BookingStatus) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	if !booking.Status.CanTransitionTo(status) {
		return nil, apperr.New(apperr.InvalidTransition, "cannot move booking from %s to %q", booking.Status, status)
	}

	now := s.now()
	if err := s.store.UpdateBookingStatus(ctx, bookingID, status, now); err != nil {
		return nil, storeError(err, "booking")
	}
	slog.Info("Booking status updated", "booking_id", bookingID, "from", booking.Status, "to", status)

	booking.Status = status
	booking.UpdatedAt = now
	return booking, nil
}

// UpdateNotes replaces the operational notes of a booking.
func (s *BookingService) UpdateNotes(ctx context.Context, bookingID, notes string) (*models.Booking, error) {
	now := s.now()
	notes = strings.TrimSpace(notes)
	if err := s.store.UpdateBookingNotes(ctx, bookingID, notes, now); err != nil {
		return nil, storeError(err, "booking")
	}
	return s.GetBooking(ctx, bookingID)
}

func storeError(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, err, what+" not found")
	}
	return apperr.Wrap(apperr.PersistenceFailed, err, "failed to access "+what)
}
