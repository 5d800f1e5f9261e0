package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/storage"
)

const pendingDebitColumns = `id, booking_id, customer_id, amount, status, attempts, last_error,
	next_attempt_at, transaction_id, note, created_at, updated_at`

func insertPendingDebit(ctx context.Context, tx *sql.Tx, p *models.PendingDebit) error {
	// Generate ID if not set
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = models.PendingDebitPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.NextAttemptAt.IsZero() {
		p.NextAttemptAt = p.CreatedAt
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO pending_debits (`+pendingDebitColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BookingID, p.CustomerID, p.Amount, p.Status, p.Attempts, nullString(p.LastError),
		toUnix(p.NextAttemptAt), nullString(p.TransactionID), nullString(p.Note),
		toUnix(p.CreatedAt), toUnix(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending debit: %w", err)
	}
	return nil
}

// GetPendingDebit retrieves an outbox row by ID.
func (s *SQLiteStore) GetPendingDebit(ctx context.Context, id string) (*models.PendingDebit, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pendingDebitColumns+" FROM pending_debits WHERE id = ?",
		id,
	)
	p, err := scanPendingDebit(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: pending debit %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending debit: %w", err)
	}
	return p, nil
}

// ListDuePendingDebits retrieves pending rows that are due for another attempt.
func (s *SQLiteStore) ListDuePendingDebits(ctx context.Context, now time.Time, limit int) ([]*models.PendingDebit, error) {
	return s.queryPendingDebits(ctx,
		"SELECT "+pendingDebitColumns+` FROM pending_debits
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, created_at ASC
		 LIMIT ?`,
		models.PendingDebitPending, toUnix(now), limit,
	)
}

// ListPendingDebits retrieves rows by status, or every row when status is empty.
func (s *SQLiteStore) ListPendingDebits(ctx context.Context, status models.PendingDebitStatus) ([]*models.PendingDebit, error) {
	if status == "" {
		return s.queryPendingDebits(ctx,
			"SELECT "+pendingDebitColumns+" FROM pending_debits ORDER BY created_at ASC",
		)
	}
	return s.queryPendingDebits(ctx,
		"SELECT "+pendingDebitColumns+" FROM pending_debits WHERE status = ? ORDER BY created_at ASC",
		status,
	)
}

// UpdatePendingDebit stores retry bookkeeping for a row that is still pending.
func (s *SQLiteStore) UpdatePendingDebit(ctx context.Context, p *models.PendingDebit) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pending_debits
		 SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ?, note = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		p.Status, p.Attempts, nullString(p.LastError), toUnix(p.NextAttemptAt), nullString(p.Note),
		toUnix(p.UpdatedAt), p.ID, models.PendingDebitPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update pending debit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		var status models.PendingDebitStatus
		err := s.db.QueryRowContext(ctx, "SELECT status FROM pending_debits WHERE id = ?", p.ID).Scan(&status)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: pending debit %s", storage.ErrNotFound, p.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to get pending debit: %w", err)
		}
		return fmt.Errorf("%w: pending debit %s is %s", storage.ErrVersionConflict, p.ID, status)
	}
	return nil
}

// SettlePendingDebit marks a pending or dead row settled and links the booking
// to the ledger entry. ledgerStatus is stamped on the booking.
func (s *SQLiteStore) SettlePendingDebit(ctx context.Context, id, transactionID string, ledgerStatus models.LedgerStatus, at time.Time) error {
	return s.closePendingDebit(ctx, id,
		`UPDATE pending_debits SET status = ?, transaction_id = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		[]interface{}{models.PendingDebitSettled, transactionID, toUnix(at), id,
			models.PendingDebitPending, models.PendingDebitDead},
		`UPDATE bookings SET ledger_status = ?, wallet_transaction_id = ?, updated_at = ? WHERE id = ?`,
		[]interface{}{ledgerStatus, transactionID, toUnix(at)},
	)
}

// ResolvePendingDebit marks a pending or dead row resolved out of band.
func (s *SQLiteStore) ResolvePendingDebit(ctx context.Context, id, note string, at time.Time) error {
	return s.closePendingDebit(ctx, id,
		`UPDATE pending_debits SET status = ?, note = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		[]interface{}{models.PendingDebitResolved, nullString(note), toUnix(at), id,
			models.PendingDebitPending, models.PendingDebitDead},
		`UPDATE bookings SET ledger_status = ?, updated_at = ? WHERE id = ?`,
		[]interface{}{models.LedgerResolved, toUnix(at)},
	)
}

// closePendingDebit updates the outbox row and its booking in one transaction.
// debitSQL must only match rows in a closable status; when it matches nothing
// the row was closed by another writer and ErrVersionConflict is returned.
// bookingArgs is completed with the booking ID.
func (s *SQLiteStore) closePendingDebit(ctx context.Context, id string,
	debitSQL string, debitArgs []interface{}, bookingSQL string, bookingArgs []interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var bookingID string
	var status models.PendingDebitStatus
	err = tx.QueryRowContext(ctx, "SELECT booking_id, status FROM pending_debits WHERE id = ?", id).Scan(&bookingID, &status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: pending debit %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get pending debit: %w", err)
	}

	result, err := tx.ExecContext(ctx, debitSQL, debitArgs...)
	if err != nil {
		return fmt.Errorf("failed to update pending debit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: pending debit %s is %s", storage.ErrVersionConflict, id, status)
	}

	if _, err := tx.ExecContext(ctx, bookingSQL, append(bookingArgs, bookingID)...); err != nil {
		return fmt.Errorf("failed to update booking ledger status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountDuePendingDebits counts pending rows whose next attempt is at or before now.
func (s *SQLiteStore) CountDuePendingDebits(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pending_debits WHERE status = ? AND next_attempt_at <= ?",
		models.PendingDebitPending, toUnix(now),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due pending debits: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) queryPendingDebits(ctx context.Context, query string, args ...interface{}) ([]*models.PendingDebit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending debits: %w", err)
	}
	defer rows.Close()

	var debits []*models.PendingDebit
	for rows.Next() {
		p, err := scanPendingDebit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending debit: %w", err)
		}
		debits = append(debits, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending debits: %w", err)
	}

	return debits, nil
}

func scanPendingDebit(row scanner) (*models.PendingDebit, error) {
	p := &models.PendingDebit{}
	var lastError, txID, note sql.NullString
	var nextAttempt, createdAt, updatedAt int64

	err := row.Scan(&p.ID, &p.BookingID, &p.CustomerID, &p.Amount, &p.Status, &p.Attempts, &lastError,
		&nextAttempt, &txID, &note, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.LastError = lastError.String
	p.TransactionID = txID.String
	p.Note = note.String
	p.NextAttemptAt = fromUnix(nextAttempt)
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updatedAt)
	return p, nil
}
