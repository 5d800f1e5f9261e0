package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/salonwise/internal/ledger"
	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/storage/sqlite"
)

var errInjected = errors.New("injected failure")

// faultyStore wraps the SQLite store so tests can break individual writes.
type faultyStore struct {
	*sqlite.SQLiteStore

	mu            sync.Mutex
	failBooking   bool
	failMutations bool

	// beforeCreate runs once ahead of the booking insert.
	beforeCreate func()
}

func (f *faultyStore) CreateBooking(ctx context.Context, booking *models.Booking, pending *models.PendingDebit) error {
	f.mu.Lock()
	fail := f.failBooking
	hook := f.beforeCreate
	f.beforeCreate = nil
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	if hook != nil {
		hook()
	}
	return f.SQLiteStore.CreateBooking(ctx, booking, pending)
}

func (f *faultyStore) ApplyWalletMutation(ctx context.Context, account *models.WalletAccount, expectedVersion int64, tx *models.WalletTransaction) error {
	f.mu.Lock()
	fail := f.failMutations
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.SQLiteStore.ApplyWalletMutation(ctx, account, expectedVersion, tx)
}

type testEnv struct {
	store      *faultyStore
	ledger     *ledger.Ledger
	reconciler *ledger.Reconciler
	bookings   *BookingService
	checkout   *CheckoutService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := &faultyStore{SQLiteStore: db}
	l := ledger.New(store)
	r := ledger.NewReconciler(l, store)

	return &testEnv{
		store:      store,
		ledger:     l,
		reconciler: r,
		bookings:   NewBookingService(store, l, r, nil),
		checkout:   NewCheckoutService(l),
	}
}

func (e *testEnv) topUp(t *testing.T, customerID, amount string) {
	t.Helper()
	_, err := e.ledger.Credit(context.Background(), customerID, d(amount), "top-up")
	require.NoError(t, err)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func member(id string) models.Identity {
	return models.Identity{
		IsAuthenticated: true,
		CustomerID:      id,
		Name:            "Priya Nair",
		Email:           "priya@example.com",
	}
}

// cart150 is two services totalling 150.00.
func cart150() []models.LineItem {
	return []models.LineItem{
		{ID: "svc-color", Kind: models.ItemService, Name: "Color", UnitPrice: d("100.00"), DurationMinutes: 90},
		{ID: "svc-blow", Kind: models.ItemService, Name: "Blow dry", UnitPrice: d("50.00"), DurationMinutes: 30},
	}
}

// validRequest is a guest cash checkout of cart150 at 5% tax: 157.50.
func validRequest() CreateBookingRequest {
	return CreateBookingRequest{
		Identity:  models.Guest,
		Customer:  models.Customer{Name: "Walk In", Phone: "+15550199"},
		Items:     cart150(),
		Modifiers: models.ChargeModifiers{TaxRatePercent: d("5")},
		Schedule:  models.Schedule{Date: "2026-11-03", TimeSlot: "15:00"},
		Staff:     []models.StaffAssignment{{StaffID: "stf-1", StaffName: "Jo", ServiceID: "svc-color"}},
		Payment:   PaymentChoice{Mode: models.PaymentCash},
	}
}
