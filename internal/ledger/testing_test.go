package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/storage"
	"github.com/mmynk/salonwise/internal/storage/sqlite"
)

var errDiskIO = errors.New("disk I/O error")

// flakyStore wraps the SQLite store and fails a configurable number of writes.
type flakyStore struct {
	*sqlite.SQLiteStore

	mu             sync.Mutex
	failApply      int
	conflictApply  int
	failSettle     int
	applyCalls     int
	conflictsFired int

	// beforeSettle runs after the debit is written and before the outbox row
	// is stamped, standing in for a concurrent writer.
	beforeSettle func(id, transactionID string)
}

func (f *flakyStore) ApplyWalletMutation(ctx context.Context, account *models.WalletAccount, expectedVersion int64, tx *models.WalletTransaction) error {
	f.mu.Lock()
	f.applyCalls++
	if f.failApply > 0 {
		f.failApply--
		f.mu.Unlock()
		return errDiskIO
	}
	if f.conflictApply > 0 {
		f.conflictApply--
		f.conflictsFired++
		f.mu.Unlock()
		return fmt.Errorf("%w: injected", storage.ErrVersionConflict)
	}
	f.mu.Unlock()
	return f.SQLiteStore.ApplyWalletMutation(ctx, account, expectedVersion, tx)
}

func (f *flakyStore) SettlePendingDebit(ctx context.Context, id, transactionID string, ledgerStatus models.LedgerStatus, at time.Time) error {
	f.mu.Lock()
	if f.failSettle > 0 {
		f.failSettle--
		f.mu.Unlock()
		return errDiskIO
	}
	hook := f.beforeSettle
	f.beforeSettle = nil
	f.mu.Unlock()

	if hook != nil {
		hook(id, transactionID)
	}
	return f.SQLiteStore.SettlePendingDebit(ctx, id, transactionID, ledgerStatus, at)
}

func newTestStore(t *testing.T) *flakyStore {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &flakyStore{SQLiteStore: store}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	// Ahead of wall time so rows stamped with time.Now() are already due.
	return &testClock{now: time.Now().UTC().Add(time.Minute)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// createBookingWithDebit stores a minimal booking whose wallet portion is amount.
func createBookingWithDebit(t *testing.T, store storage.BookingStore, reference, customerID, amount string) (*models.Booking, *models.PendingDebit) {
	t.Helper()
	booking := &models.Booking{
		Reference:    reference,
		Customer:     models.Customer{ID: customerID, Name: "Mina", Email: "mina@example.com"},
		Allocation:   models.PaymentAllocation{Mode: models.PaymentWallet, Wallet: d(amount), Cash: decimal.Zero},
		Breakdown:    models.PriceBreakdown{GrandTotal: d(amount)},
		Schedule:     models.Schedule{Date: "2026-11-02", TimeSlot: "10:00"},
		Status:       models.BookingScheduled,
		LedgerStatus: models.LedgerPending,
	}
	pending := &models.PendingDebit{CustomerID: customerID, Amount: d(amount)}
	require.NoError(t, store.CreateBooking(context.Background(), booking, pending))
	return booking, pending
}
