package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/storage"
)

const bookingColumns = `id, reference, customer_id, customer_name, customer_email, customer_phone,
	schedule_date, time_slot, items, modifiers, breakdown, allocation, staff,
	status, notes, ledger_status, wallet_transaction_id, created_at, updated_at`

// CreateBooking persists a new booking, and its pending debit if one is given.
func (s *SQLiteStore) CreateBooking(ctx context.Context, booking *models.Booking, pending *models.PendingDebit) error {
	// Generate ID if not set
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}

	docs, err := marshalSnapshots(booking)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookings (`+bookingColumns+`, payment_mode, grand_total)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.Reference, nullString(booking.Customer.ID), booking.Customer.Name,
		nullString(booking.Customer.Email), nullString(booking.Customer.Phone),
		booking.Schedule.Date, booking.Schedule.TimeSlot,
		docs.items, docs.modifiers, docs.breakdown, docs.allocation, docs.staff,
		booking.Status, nullString(booking.Notes), booking.LedgerStatus, nullString(booking.WalletTransactionID),
		toUnix(booking.CreatedAt), toUnix(booking.UpdatedAt),
		booking.Allocation.Mode, booking.Breakdown.GrandTotal,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: booking reference %s", storage.ErrDuplicate, booking.Reference)
	}
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	if pending != nil {
		pending.BookingID = booking.ID
		if err := insertPendingDebit(ctx, tx, pending); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetBooking retrieves a booking by ID.
func (s *SQLiteStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = ?",
		bookingID,
	)
	booking, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: booking %s", storage.ErrNotFound, bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// GetBookingByReference retrieves a booking by its reference.
func (s *SQLiteStore) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE reference = ?",
		reference,
	)
	booking, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: booking reference %s", storage.ErrNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by reference: %w", err)
	}
	return booking, nil
}

// ListBookingsByCustomer retrieves all bookings for a customer, newest first.
func (s *SQLiteStore) ListBookingsByCustomer(ctx context.Context, customerID string) ([]*models.Booking, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE customer_id = ? ORDER BY created_at DESC",
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings by customer: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}

	return bookings, nil
}

// UpdateBookingStatus updates the status of a booking.
func (s *SQLiteStore) UpdateBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus, at time.Time) error {
	return s.updateBookingField(ctx, bookingID, "status", string(status), at)
}

// UpdateBookingNotes updates the operational notes of a booking.
func (s *SQLiteStore) UpdateBookingNotes(ctx context.Context, bookingID, notes string, at time.Time) error {
	return s.updateBookingField(ctx, bookingID, "notes", notes, at)
}

// updateBookingField only ever touches the mutable columns.
func (s *SQLiteStore) updateBookingField(ctx context.Context, bookingID, column, value string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET "+column+" = ?, updated_at = ? WHERE id = ?",
		value, toUnix(at), bookingID,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", column, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: booking %s", storage.ErrNotFound, bookingID)
	}

	return nil
}

type bookingDocs struct {
	items, modifiers, breakdown, allocation, staff string
}

func marshalSnapshots(b *models.Booking) (bookingDocs, error) {
	var docs bookingDocs
	fields := []struct {
		dst *string
		src interface{}
	}{
		{&docs.items, b.Items},
		{&docs.modifiers, b.Modifiers},
		{&docs.breakdown, b.Breakdown},
		{&docs.allocation, b.Allocation},
		{&docs.staff, b.Staff},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.src)
		if err != nil {
			return bookingDocs{}, fmt.Errorf("failed to encode booking snapshot: %w", err)
		}
		*f.dst = string(data)
	}
	return docs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row scanner) (*models.Booking, error) {
	var (
		b                               models.Booking
		docs                            bookingDocs
		customerID, email, phone, notes sql.NullString
		walletTxID                      sql.NullString
		createdAt, updatedAt            int64
	)

	err := row.Scan(&b.ID, &b.Reference, &customerID, &b.Customer.Name, &email, &phone,
		&b.Schedule.Date, &b.Schedule.TimeSlot,
		&docs.items, &docs.modifiers, &docs.breakdown, &docs.allocation, &docs.staff,
		&b.Status, &notes, &b.LedgerStatus, &walletTxID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	b.Customer.ID = customerID.String
	b.Customer.Email = email.String
	b.Customer.Phone = phone.String
	b.Notes = notes.String
	b.WalletTransactionID = walletTxID.String
	b.CreatedAt = fromUnix(createdAt)
	b.UpdatedAt = fromUnix(updatedAt)

	fields := []struct {
		src string
		dst interface{}
	}{
		{docs.items, &b.Items},
		{docs.modifiers, &b.Modifiers},
		{docs.breakdown, &b.Breakdown},
		{docs.allocation, &b.Allocation},
		{docs.staff, &b.Staff},
	}
	for _, f := range fields {
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode booking snapshot: %w", err)
		}
	}

	return &b, nil
}
