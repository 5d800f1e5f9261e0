package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Money columns are TEXT holding exact decimal strings.
// IMPORTANT: bookings must be created BEFORE pending_debits due to the foreign key.
const schema = `
CREATE TABLE IF NOT EXISTS bookings (
    id TEXT PRIMARY KEY,
    reference TEXT NOT NULL UNIQUE,
    customer_id TEXT,
    customer_name TEXT NOT NULL,
    customer_email TEXT,
    customer_phone TEXT,
    schedule_date TEXT NOT NULL,
    time_slot TEXT NOT NULL,
    items TEXT NOT NULL,
    modifiers TEXT NOT NULL,
    breakdown TEXT NOT NULL,
    allocation TEXT NOT NULL,
    staff TEXT NOT NULL,
    payment_mode TEXT NOT NULL,
    grand_total TEXT NOT NULL,
    status TEXT NOT NULL,
    notes TEXT,
    ledger_status TEXT NOT NULL,
    wallet_transaction_id TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS wallet_accounts (
    customer_id TEXT PRIMARY KEY,
    balance TEXT NOT NULL,
    loyalty_points INTEGER NOT NULL CHECK (loyalty_points >= 0),
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS wallet_transactions (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    kind TEXT NOT NULL,
    amount TEXT NOT NULL,
    points_delta INTEGER NOT NULL,
    reference TEXT NOT NULL,
    idempotency_key TEXT UNIQUE,
    previous_balance TEXT NOT NULL,
    new_balance TEXT NOT NULL,
    previous_points INTEGER NOT NULL,
    new_points INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (customer_id, sequence),
    FOREIGN KEY (customer_id) REFERENCES wallet_accounts(customer_id)
);

CREATE TRIGGER IF NOT EXISTS wallet_transactions_no_update
BEFORE UPDATE ON wallet_transactions
BEGIN
    SELECT RAISE(ABORT, 'wallet transactions are append-only');
END;

CREATE TRIGGER IF NOT EXISTS wallet_transactions_no_delete
BEFORE DELETE ON wallet_transactions
BEGIN
    SELECT RAISE(ABORT, 'wallet transactions are append-only');
END;

CREATE TABLE IF NOT EXISTS pending_debits (
    id TEXT PRIMARY KEY,
    booking_id TEXT NOT NULL UNIQUE,
    customer_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    status TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    next_attempt_at INTEGER NOT NULL,
    transaction_id TEXT,
    note TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (booking_id) REFERENCES bookings(id)
);

CREATE INDEX IF NOT EXISTS idx_bookings_customer_id ON bookings(customer_id);
CREATE INDEX IF NOT EXISTS idx_wallet_transactions_customer_id ON wallet_transactions(customer_id, sequence);
CREATE INDEX IF NOT EXISTS idx_pending_debits_due ON pending_debits(status, next_attempt_at);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
