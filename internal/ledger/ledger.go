// Package ledger owns wallet accounts. Every balance change goes through Debit or
// Credit and leaves one append-only WalletTransaction behind.
//
// Writers of one account are serialized twice: by an in-process lock per customer,
// and by a compare-and-swap on the account version in the store, which also covers
// other processes sharing the database. A lost race is retried from a fresh read.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/metrics"
	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/storage"
)

const defaultMaxRetries = 5

// ReversalPrefix marks the reference and idempotency key of compensating entries.
const ReversalPrefix = "reversal:"

// Ledger applies wallet mutations.
type Ledger struct {
	store      storage.WalletStore
	maxRetries int
	metrics    *metrics.Metrics
	now        func() time.Time
	locks      *accountLocks
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxRetries sets how many times a mutation is retried after a version conflict.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger over store.
func New(store storage.WalletStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		maxRetries: defaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
		locks:      newAccountLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MutationOption adjusts a single Debit or Credit call.
type MutationOption func(*mutation)

type mutation struct {
	requireAccount bool
	idempotencyKey string
}

// RequireAccount fails with AccountNotFound instead of creating a zero account.
func RequireAccount() MutationOption {
	return func(m *mutation) { m.requireAccount = true }
}

// IdempotencyKey records the mutation under key. A second call with the same key
// returns the transaction recorded by the first and changes nothing.
func IdempotencyKey(key string) MutationOption {
	return func(m *mutation) { m.idempotencyKey = key }
}

// Account returns the customer's account, creating a zero-balance one if needed.
func (l *Ledger) Account(ctx context.Context, customerID string) (*models.WalletAccount, error) {
	if customerID == "" {
		return nil, apperr.New(apperr.InvalidInput, "customer id is required")
	}
	return l.loadAccount(ctx, customerID, false)
}

// Debit removes amount from the balance and amount×100 from the points, each
// floored at zero.
func (l *Ledger) Debit(ctx context.Context, customerID string, amount decimal.Decimal, reference string, opts ...MutationOption) (*models.WalletTransaction, error) {
	return l.apply(ctx, models.TransactionDebit, customerID, amount, reference, opts)
}

// Credit adds amount to the balance and amount×100 to the points.
func (l *Ledger) Credit(ctx context.Context, customerID string, amount decimal.Decimal, reference string, opts ...MutationOption) (*models.WalletTransaction, error) {
	return l.apply(ctx, models.TransactionCredit, customerID, amount, reference, opts)
}

// Reverse writes the compensating entry for transactionID: a credit of what a
// debit actually removed, or a debit of a credit's amount. Reversing the same
// transaction twice returns the first reversal.
func (l *Ledger) Reverse(ctx context.Context, transactionID string) (*models.WalletTransaction, error) {
	original, err := l.store.GetWalletTransaction(ctx, transactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "wallet transaction %s not found", transactionID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to load wallet transaction")
	}
	if strings.HasPrefix(original.Reference, ReversalPrefix) {
		return nil, apperr.New(apperr.InvalidInput, "transaction %s is itself a reversal", transactionID)
	}

	opts := []MutationOption{RequireAccount(), IdempotencyKey(ReversalPrefix + original.ID)}
	reference := ReversalPrefix + original.ID

	switch original.Kind {
	case models.TransactionDebit:
		applied := original.AppliedAmount()
		if !applied.IsPositive() {
			return nil, apperr.New(apperr.InvalidInput, "transaction %s removed nothing from the wallet", transactionID)
		}
		return l.Credit(ctx, original.CustomerID, applied, reference, opts...)
	case models.TransactionCredit:
		return l.Debit(ctx, original.CustomerID, original.Amount, reference, opts...)
	default:
		return nil, apperr.New(apperr.InvalidInput, "unknown transaction kind %q", original.Kind)
	}
}

// History returns the customer's transactions in the order they were applied.
func (l *Ledger) History(ctx context.Context, customerID string) ([]*models.WalletTransaction, error) {
	txs, err := l.store.ListWalletTransactions(ctx, customerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, err, "failed to load wallet history")
	}
	return txs, nil
}

func (l *Ledger) apply(ctx context.Context, kind models.TransactionKind, customerID string, amount decimal.Decimal, reference string, opts []MutationOption) (*models.WalletTransaction, error) {
	var m mutation
	for _, opt := range opts {
		opt(&m)
	}

	if customerID == "" {
		return nil, apperr.New(apperr.InvalidInput, "customer id is required")
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidInput, "%s amount must be positive, got %s", kind, amount)
	}

	unlock := l.locks.lock(customerID)
	defer unlock()

	if m.idempotencyKey != "" {
		existing, err := l.store.GetWalletTransactionByKey(ctx, m.idempotencyKey)
		if err == nil {
			l.metrics.LedgerMutation(string(kind), "replayed")
			return existing, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			l.metrics.LedgerMutation(string(kind), "error")
			return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to check idempotency key")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			l.metrics.LedgerMutation(string(kind), "error")
			return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "wallet mutation cancelled")
		}

		account, err := l.loadAccount(ctx, customerID, m.requireAccount)
		if err != nil {
			l.metrics.LedgerMutation(string(kind), "error")
			return nil, err
		}

		next, wtx := l.plan(account, kind, amount, reference, m.idempotencyKey)

		err = l.store.ApplyWalletMutation(ctx, next, account.Version, wtx)
		switch {
		case err == nil:
			l.metrics.LedgerMutation(string(kind), "ok")
			slog.Debug("Wallet mutation applied",
				"customer_id", customerID,
				"kind", kind,
				"amount", amount.StringFixed(2),
				"new_balance", wtx.NewBalance.StringFixed(2),
				"sequence", wtx.Sequence,
			)
			return wtx, nil

		case errors.Is(err, storage.ErrVersionConflict):
			l.metrics.VersionConflict()
			slog.Debug("Wallet version conflict, retrying", "customer_id", customerID, "attempt", attempt+1)
			lastErr = err
			continue

		case errors.Is(err, storage.ErrDuplicate) && m.idempotencyKey != "":
			// Another process recorded the same key between our check and write.
			existing, getErr := l.store.GetWalletTransactionByKey(ctx, m.idempotencyKey)
			if getErr != nil {
				l.metrics.LedgerMutation(string(kind), "error")
				return nil, apperr.Wrap(apperr.LedgerWriteFailed, getErr, "failed to load duplicate wallet transaction")
			}
			l.metrics.LedgerMutation(string(kind), "replayed")
			return existing, nil

		default:
			l.metrics.LedgerMutation(string(kind), "error")
			return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to write wallet mutation")
		}
	}

	l.metrics.LedgerMutation(string(kind), "error")
	return nil, apperr.Wrap(apperr.LedgerWriteFailed, lastErr, "wallet account kept changing, giving up")
}

// plan computes the next account state and the entry that records it.
func (l *Ledger) plan(account *models.WalletAccount, kind models.TransactionKind, amount decimal.Decimal, reference, key string) (*models.WalletAccount, *models.WalletTransaction) {
	points := models.PointsFor(amount)

	next := *account
	switch kind {
	case models.TransactionDebit:
		next.Balance = decimal.Max(decimal.Zero, account.Balance.Sub(amount))
		next.LoyaltyPoints = max(0, account.LoyaltyPoints-points)
	case models.TransactionCredit:
		next.Balance = account.Balance.Add(amount)
		next.LoyaltyPoints = account.LoyaltyPoints + points
	}
	next.Version = account.Version + 1
	next.UpdatedAt = l.now()

	wtx := &models.WalletTransaction{
		CustomerID:      account.CustomerID,
		Kind:            kind,
		Amount:          amount,
		PointsDelta:     next.LoyaltyPoints - account.LoyaltyPoints,
		Reference:       reference,
		IdempotencyKey:  key,
		Sequence:        next.Version,
		PreviousBalance: account.Balance,
		NewBalance:      next.Balance,
		PreviousPoints:  account.LoyaltyPoints,
		NewPoints:       next.LoyaltyPoints,
		CreatedAt:       next.UpdatedAt,
	}
	return &next, wtx
}

func (l *Ledger) loadAccount(ctx context.Context, customerID string, requireExisting bool) (*models.WalletAccount, error) {
	account, err := l.store.GetWalletAccount(ctx, customerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to load wallet account")
	}
	if requireExisting {
		return nil, apperr.New(apperr.AccountNotFound, "no wallet account for customer %s", customerID)
	}

	now := l.now()
	fresh := &models.WalletAccount{
		CustomerID: customerID,
		Balance:    decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.store.CreateWalletAccount(ctx, fresh); err != nil {
		return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to create wallet account")
	}

	// Re-read: a concurrent creator may have won the insert.
	account, err = l.store.GetWalletAccount(ctx, customerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to load wallet account")
	}
	return account, nil
}
