// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/salonwise/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a guarded write lost a race with
	// another writer of the same record.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate key")
)

// BookingStore persists bookings. Bookings are last-write-wins documents keyed by ID.
type BookingStore interface {
	// CreateBooking persists a new booking. When pending is non-nil the outbox row
	// is written in the same transaction, so a booking with a wallet portion never
	// exists without its pending debit.
	CreateBooking(ctx context.Context, booking *models.Booking, pending *models.PendingDebit) error

	// GetBooking retrieves a booking by ID. Returns ErrNotFound if missing.
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)

	// GetBookingByReference retrieves a booking by its human-readable reference.
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)

	// ListBookingsByCustomer returns a customer's bookings, newest first.
	ListBookingsByCustomer(ctx context.Context, customerID string) ([]*models.Booking, error)

	// UpdateBookingStatus changes only the status of a booking.
	UpdateBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus, at time.Time) error

	// UpdateBookingNotes changes only the operational notes of a booking.
	UpdateBookingNotes(ctx context.Context, bookingID, notes string, at time.Time) error
}

// WalletStore persists wallet accounts and their append-only transaction log.
type WalletStore interface {
	// GetWalletAccount returns ErrNotFound if the customer has no account.
	GetWalletAccount(ctx context.Context, customerID string) (*models.WalletAccount, error)

	// CreateWalletAccount inserts the account unless one already exists.
	CreateWalletAccount(ctx context.Context, account *models.WalletAccount) error

	// ApplyWalletMutation atomically writes the new account state and appends tx.
	// The write only succeeds if the stored version still equals expectedVersion,
	// otherwise ErrVersionConflict. A reused idempotency key yields ErrDuplicate.
	ApplyWalletMutation(ctx context.Context, account *models.WalletAccount, expectedVersion int64, tx *models.WalletTransaction) error

	// GetWalletTransaction retrieves one ledger entry by ID.
	GetWalletTransaction(ctx context.Context, transactionID string) (*models.WalletTransaction, error)

	// GetWalletTransactionByKey retrieves the entry recorded under an idempotency key.
	GetWalletTransactionByKey(ctx context.Context, key string) (*models.WalletTransaction, error)

	// ListWalletTransactions returns a customer's entries ordered by sequence.
	ListWalletTransactions(ctx context.Context, customerID string) ([]*models.WalletTransaction, error)
}

// PendingDebitStore persists the outbox of wallet debits awaiting the ledger.
type PendingDebitStore interface {
	GetPendingDebit(ctx context.Context, id string) (*models.PendingDebit, error)

	// ListDuePendingDebits returns pending rows whose next attempt is at or before now,
	// oldest first, at most limit rows.
	ListDuePendingDebits(ctx context.Context, now time.Time, limit int) ([]*models.PendingDebit, error)

	// ListPendingDebits returns rows in the given status, or all rows if status is empty.
	ListPendingDebits(ctx context.Context, status models.PendingDebitStatus) ([]*models.PendingDebit, error)

	// CountDuePendingDebits counts pending rows whose next attempt is at or before now.
	CountDuePendingDebits(ctx context.Context, now time.Time) (int, error)

	// UpdatePendingDebit stores attempt bookkeeping (attempts, error, schedule, status, note).
	// It only writes a row that is still pending, otherwise ErrVersionConflict.
	UpdatePendingDebit(ctx context.Context, p *models.PendingDebit) error

	// SettlePendingDebit marks a pending or dead row settled and stamps the booking
	// with the ledger transaction and ledgerStatus, in one transaction.
	// A row already settled or resolved yields ErrVersionConflict.
	SettlePendingDebit(ctx context.Context, id, transactionID string, ledgerStatus models.LedgerStatus, at time.Time) error

	// ResolvePendingDebit marks a pending or dead row resolved out of band and updates
	// the booking's ledger status, in one transaction. A row already settled or
	// resolved yields ErrVersionConflict.
	ResolvePendingDebit(ctx context.Context, id, note string, at time.Time) error
}

// Store is the complete persistence surface used by the server.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	BookingStore
	WalletStore
	PendingDebitStore

	// Close releases any resources held by the store.
	Close() error
}
