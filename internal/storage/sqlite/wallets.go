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

const walletTransactionColumns = `id, customer_id, sequence, kind, amount, points_delta, reference,
	idempotency_key, previous_balance, new_balance, previous_points, new_points, created_at`

// GetWalletAccount retrieves a customer's wallet account.
func (s *SQLiteStore) GetWalletAccount(ctx context.Context, customerID string) (*models.WalletAccount, error) {
	account := &models.WalletAccount{}
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT customer_id, balance, loyalty_points, version, created_at, updated_at
		 FROM wallet_accounts WHERE customer_id = ?`,
		customerID,
	).Scan(&account.CustomerID, &account.Balance, &account.LoyaltyPoints, &account.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: wallet account %s", storage.ErrNotFound, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet account: %w", err)
	}

	account.CreatedAt = fromUnix(createdAt)
	account.UpdatedAt = fromUnix(updatedAt)
	return account, nil
}

// CreateWalletAccount inserts the account; an existing account is left untouched.
func (s *SQLiteStore) CreateWalletAccount(ctx context.Context, account *models.WalletAccount) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO wallet_accounts (customer_id, balance, loyalty_points, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		account.CustomerID, account.Balance, account.LoyaltyPoints, account.Version,
		toUnix(account.CreatedAt), toUnix(account.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet account: %w", err)
	}

	return nil
}

// ApplyWalletMutation writes account (carrying its new version) guarded by
// expectedVersion and appends wtx in the same transaction.
func (s *SQLiteStore) ApplyWalletMutation(ctx context.Context, account *models.WalletAccount, expectedVersion int64, wtx *models.WalletTransaction) error {
	if wtx.ID == "" {
		wtx.ID = uuid.New().String()
	}
	if wtx.CreatedAt.IsZero() {
		wtx.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE wallet_accounts
		 SET balance = ?, loyalty_points = ?, version = ?, updated_at = ?
		 WHERE customer_id = ? AND version = ?`,
		account.Balance, account.LoyaltyPoints, account.Version, toUnix(account.UpdatedAt),
		account.CustomerID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: wallet account %s at version %d", storage.ErrVersionConflict, account.CustomerID, expectedVersion)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (`+walletTransactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wtx.ID, wtx.CustomerID, wtx.Sequence, wtx.Kind, wtx.Amount, wtx.PointsDelta, wtx.Reference,
		nullString(wtx.IdempotencyKey), wtx.PreviousBalance, wtx.NewBalance, wtx.PreviousPoints, wtx.NewPoints,
		toUnix(wtx.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: wallet transaction key %s", storage.ErrDuplicate, wtx.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert wallet transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetWalletTransaction retrieves a ledger entry by ID.
func (s *SQLiteStore) GetWalletTransaction(ctx context.Context, transactionID string) (*models.WalletTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+walletTransactionColumns+" FROM wallet_transactions WHERE id = ?",
		transactionID,
	)
	wtx, err := scanWalletTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: wallet transaction %s", storage.ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet transaction: %w", err)
	}
	return wtx, nil
}

// GetWalletTransactionByKey retrieves a ledger entry by idempotency key.
func (s *SQLiteStore) GetWalletTransactionByKey(ctx context.Context, key string) (*models.WalletTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+walletTransactionColumns+" FROM wallet_transactions WHERE idempotency_key = ?",
		key,
	)
	wtx, err := scanWalletTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: wallet transaction key %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet transaction by key: %w", err)
	}
	return wtx, nil
}

// ListWalletTransactions retrieves a customer's ledger entries in sequence order.
func (s *SQLiteStore) ListWalletTransactions(ctx context.Context, customerID string) ([]*models.WalletTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+walletTransactionColumns+" FROM wallet_transactions WHERE customer_id = ? ORDER BY sequence ASC",
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.WalletTransaction
	for rows.Next() {
		wtx, err := scanWalletTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		txs = append(txs, wtx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet transactions: %w", err)
	}

	return txs, nil
}

func scanWalletTransaction(row scanner) (*models.WalletTransaction, error) {
	wtx := &models.WalletTransaction{}
	var key sql.NullString
	var createdAt int64

	err := row.Scan(&wtx.ID, &wtx.CustomerID, &wtx.Sequence, &wtx.Kind, &wtx.Amount, &wtx.PointsDelta,
		&wtx.Reference, &key, &wtx.PreviousBalance, &wtx.NewBalance, &wtx.PreviousPoints, &wtx.NewPoints,
		&createdAt)
	if err != nil {
		return nil, err
	}

	wtx.IdempotencyKey = key.String
	wtx.CreatedAt = fromUnix(createdAt)
	return wtx, nil
}
