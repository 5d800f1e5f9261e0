package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/metrics"
	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/internal/storage"
)

const (
	defaultReconcileInterval = 30 * time.Second
	defaultBatchSize         = 10
	defaultMaxAttempts       = 8

	baseBackoff = 5 * time.Second
	maxBackoff  = 30 * time.Minute
)

// Reconciler drains the pending debit outbox into the ledger.
//
// A booking with a wallet portion is stored together with a pending debit. The
// debit is applied under the key "booking:<id>", so any number of attempts
// debit the wallet at most once. Failed attempts back off exponentially; after
// maxAttempts the entry is marked dead and handed to the DeadLetter sink.
type Reconciler struct {
	ledger      *Ledger
	store       storage.PendingDebitStore
	deadLetter  DeadLetter
	metrics     *metrics.Metrics
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxAttempts sets how many failed attempts move an entry to dead.
func WithMaxAttempts(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithDeadLetter(d DeadLetter) ReconcilerOption {
	return func(r *Reconciler) {
		if d != nil {
			r.deadLetter = d
		}
	}
}

func WithReconcilerMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a Reconciler that debits through l.
func NewReconciler(l *Ledger, store storage.PendingDebitStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		ledger:      l,
		store:       store,
		deadLetter:  LogDeadLetter{},
		interval:    defaultReconcileInterval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Settle applies one pending debit. On success the booking is stamped with the
// ledger transaction. On failure the attempt is recorded and a LedgerWriteFailed
// error is returned; the entry stays in the outbox for the next pass.
//
// An entry that was settled or resolved by someone else in the meantime yields
// InvalidTransition and p is refreshed from the store.
func (r *Reconciler) Settle(ctx context.Context, p *models.PendingDebit) (*models.WalletTransaction, error) {
	if p.Status != models.PendingDebitPending {
		return nil, apperr.New(apperr.InvalidTransition, "pending debit %s is %s", p.ID, p.Status)
	}
	return r.attempt(ctx, p)
}

func (r *Reconciler) attempt(ctx context.Context, p *models.PendingDebit) (*models.WalletTransaction, error) {
	wtx, err := r.settle(ctx, p)
	if err == nil {
		return wtx, nil
	}
	if apperr.KindOf(err) == apperr.InvalidTransition {
		return nil, err
	}

	if recordErr := r.recordFailure(ctx, p, err); recordErr != nil {
		if apperr.KindOf(recordErr) == apperr.InvalidTransition {
			return nil, recordErr
		}
		slog.Error("Failed to record pending debit attempt",
			"pending_debit_id", p.ID,
			"error", recordErr,
		)
	}
	if apperr.KindOf(err) == apperr.LedgerWriteFailed {
		return nil, err
	}
	return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "wallet debit deferred to reconciliation")
}

func (r *Reconciler) settle(ctx context.Context, p *models.PendingDebit) (*models.WalletTransaction, error) {
	// The caller's copy may be stale; a resolved entry must never be debited.
	current, err := r.store.GetPendingDebit(ctx, p.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to load pending debit")
	}
	*p = *current
	if p.Status != models.PendingDebitPending {
		return nil, apperr.New(apperr.InvalidTransition, "pending debit %s is %s", p.ID, p.Status)
	}

	wtx, err := r.ledger.Debit(ctx, p.CustomerID, p.Amount, p.BookingID, IdempotencyKey(p.IdempotencyKey()))
	if err != nil {
		return nil, err
	}

	ledgerStatus := models.LedgerSettled
	if wtx.AppliedAmount().LessThan(p.Amount) {
		ledgerStatus = models.LedgerShort
	}

	now := r.now()
	err = r.store.SettlePendingDebit(ctx, p.ID, wtx.ID, ledgerStatus, now)
	if errors.Is(err, storage.ErrVersionConflict) {
		return r.closedDuringDebit(ctx, p, wtx)
	}
	if err != nil {
		// The debit is recorded; the next attempt replays it by key and retries the stamp.
		return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to mark pending debit settled")
	}

	p.Status = models.PendingDebitSettled
	p.TransactionID = wtx.ID
	p.UpdatedAt = now

	if ledgerStatus == models.LedgerShort {
		r.metrics.ReconcileAttempt("short")
		slog.Warn("Wallet debit settled short",
			"pending_debit_id", p.ID,
			"booking_id", p.BookingID,
			"customer_id", p.CustomerID,
			"transaction_id", wtx.ID,
			"amount", p.Amount.StringFixed(2),
			"applied", wtx.AppliedAmount().StringFixed(2),
		)
		return wtx, nil
	}

	r.metrics.ReconcileAttempt("settled")
	slog.Info("Wallet debit settled",
		"pending_debit_id", p.ID,
		"booking_id", p.BookingID,
		"transaction_id", wtx.ID,
		"attempts", p.Attempts+1,
	)
	return wtx, nil
}

// closedDuringDebit handles an entry that left pending while its debit was
// being written. A concurrent pass stamping the same transaction is a success;
// a manual resolution means the customer already paid, so the debit is reversed.
func (r *Reconciler) closedDuringDebit(ctx context.Context, p *models.PendingDebit, wtx *models.WalletTransaction) (*models.WalletTransaction, error) {
	current, err := r.store.GetPendingDebit(ctx, p.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to reload pending debit")
	}
	*p = *current

	if p.Status == models.PendingDebitSettled && p.TransactionID == wtx.ID {
		return wtx, nil
	}

	if wtx.AppliedAmount().IsPositive() {
		if _, err := r.ledger.Reverse(ctx, wtx.ID); err != nil {
			slog.Error("Failed to reverse debit for closed pending debit",
				"pending_debit_id", p.ID,
				"booking_id", p.BookingID,
				"transaction_id", wtx.ID,
				"status", p.Status,
				"error", err,
			)
			if dlErr := r.deadLetter.Send(ctx, newDeadLetterEntry(p, r.now())); dlErr != nil {
				slog.Error("Failed to send pending debit to dead letter", "pending_debit_id", p.ID, "error", dlErr)
			}
			return nil, apperr.Wrap(apperr.LedgerWriteFailed, err, "failed to reverse debit for closed pending debit")
		}
	}

	r.metrics.ReconcileAttempt("reversed")
	slog.Warn("Pending debit closed during settle, debit reversed",
		"pending_debit_id", p.ID,
		"booking_id", p.BookingID,
		"transaction_id", wtx.ID,
		"status", p.Status,
	)
	return nil, apperr.New(apperr.InvalidTransition, "pending debit %s is %s", p.ID, p.Status)
}

func (r *Reconciler) recordFailure(ctx context.Context, p *models.PendingDebit, cause error) error {
	now := r.now()
	p.Attempts++
	p.LastError = cause.Error()
	p.UpdatedAt = now
	p.NextAttemptAt = now.Add(backoff(p.Attempts))

	dead := p.Attempts >= r.maxAttempts
	if dead {
		p.Status = models.PendingDebitDead
	}

	err := r.store.UpdatePendingDebit(ctx, p)
	if errors.Is(err, storage.ErrVersionConflict) {
		if current, getErr := r.store.GetPendingDebit(ctx, p.ID); getErr == nil {
			*p = *current
		}
		return apperr.New(apperr.InvalidTransition, "pending debit %s was closed during the attempt", p.ID)
	}
	if err != nil {
		return err
	}

	if !dead {
		r.metrics.ReconcileAttempt("retry")
		slog.Warn("Wallet debit attempt failed, scheduled retry",
			"pending_debit_id", p.ID,
			"booking_id", p.BookingID,
			"customer_id", p.CustomerID,
			"amount", p.Amount.StringFixed(2),
			"attempts", p.Attempts,
			"next_attempt_at", p.NextAttemptAt,
			"error", cause,
		)
		return nil
	}

	r.metrics.ReconcileAttempt("dead")
	if err := r.deadLetter.Send(ctx, newDeadLetterEntry(p, now)); err != nil {
		slog.Error("Failed to send pending debit to dead letter", "pending_debit_id", p.ID, "error", err)
	}
	return nil
}

// backoff returns the delay after the n-th failed attempt: 5s·2^(n−1), capped at 30m.
func backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// RunResult summarizes one reconciliation pass. Skipped counts entries that
// were closed by someone else while the pass was running.
type RunResult struct {
	Processed int `json:"processed"`
	Settled   int `json:"settled"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunOnce settles every pending debit that is due now, one batch at a time.
func (r *Reconciler) RunOnce(ctx context.Context) (RunResult, error) {
	var result RunResult
	now := r.now()

	total, err := r.store.CountDuePendingDebits(ctx, now)
	if err != nil {
		return result, apperr.Wrap(apperr.PersistenceFailed, err, "failed to count due pending debits")
	}
	r.metrics.PendingDue(total)

	for {
		due, err := r.store.ListDuePendingDebits(ctx, now, r.batchSize)
		if err != nil {
			return result, apperr.Wrap(apperr.PersistenceFailed, err, "failed to list due pending debits")
		}

		stuck := 0
		for _, p := range due {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			result.Processed++
			_, err := r.settle(ctx, p)
			if err == nil {
				result.Settled++
				continue
			}
			if apperr.KindOf(err) == apperr.InvalidTransition {
				result.Skipped++
				continue
			}

			result.Failed++
			if recordErr := r.recordFailure(ctx, p, err); recordErr != nil {
				if apperr.KindOf(recordErr) == apperr.InvalidTransition {
					continue
				}
				slog.Error("Failed to record pending debit attempt", "pending_debit_id", p.ID, "error", recordErr)
				stuck++
			}
		}

		// A short batch drained the queue; a batch where nothing could be
		// written back would be listed again unchanged.
		if len(due) < r.batchSize || stuck == len(due) {
			break
		}
	}

	if result.Processed > 0 {
		slog.Info("Reconciliation pass finished",
			"processed", result.Processed,
			"settled", result.Settled,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

// Start runs RunOnce every interval until ctx ends. The returned channel is
// closed once the loop has stopped.
func (r *Reconciler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		slog.Info("Reconciler started", "interval", r.interval.String(), "batch_size", r.batchSize)

		for {
			select {
			case <-ctx.Done():
				slog.Info("Reconciler shutting down")
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("Reconciliation pass failed", "error", err)
				}
			}
		}
	}()

	return done
}

// Resolve closes a pending or dead entry that staff settled out of band.
func (r *Reconciler) Resolve(ctx context.Context, id, note string) (*models.PendingDebit, error) {
	p, err := r.store.GetPendingDebit(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "pending debit %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, err, "failed to load pending debit")
	}

	switch p.Status {
	case models.PendingDebitPending, models.PendingDebitDead:
	default:
		return nil, apperr.New(apperr.InvalidTransition, "pending debit %s is already %s", id, p.Status)
	}

	err = r.store.ResolvePendingDebit(ctx, id, note, r.now())
	if errors.Is(err, storage.ErrVersionConflict) {
		return nil, apperr.New(apperr.InvalidTransition, "pending debit %s was closed concurrently", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, err, "failed to resolve pending debit")
	}
	slog.Info("Pending debit resolved manually", "pending_debit_id", id, "booking_id", p.BookingID)

	resolved, err := r.store.GetPendingDebit(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, err, "failed to load pending debit")
	}
	return resolved, nil
}

// List returns outbox entries in status, or all entries when status is empty.
func (r *Reconciler) List(ctx context.Context, status models.PendingDebitStatus) ([]*models.PendingDebit, error) {
	switch status {
	case "", models.PendingDebitPending, models.PendingDebitSettled, models.PendingDebitDead, models.PendingDebitResolved:
	default:
		return nil, apperr.New(apperr.InvalidInput, "unknown pending debit status %q", status)
	}

	debits, err := r.store.ListPendingDebits(ctx, status)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailed, err, "failed to list pending debits")
	}
	return debits, nil
}
