package ledger

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/salonwise/internal/apperr"
	"github.com/mmynk/salonwise/internal/metrics"
	"github.com/mmynk/salonwise/internal/models"
)

type recordingDeadLetter struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

func (r *recordingDeadLetter) Send(_ context.Context, entry DeadLetterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func newTestReconciler(t *testing.T, opts ...ReconcilerOption) (*Reconciler, *Ledger, *flakyStore, *testClock) {
	t.Helper()
	store := newTestStore(t)
	clock := newTestClock()
	l := New(store, WithClock(clock.Now))
	opts = append([]ReconcilerOption{WithReconcilerClock(clock.Now)}, opts...)
	return NewReconciler(l, store, opts...), l, store, clock
}

func TestSettleStampsBooking(t *testing.T) {
	ctx := context.Background()
	r, l, store, _ := newTestReconciler(t)

	_, err := l.Credit(ctx, "cust-1", d("100"), "top-up")
	require.NoError(t, err)
	booking, pending := createBookingWithDebit(t, store, "BK-SETTLE", "cust-1", "40")

	wtx, err := r.Settle(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, wtx.Reference)
	assert.Equal(t, "booking:"+booking.ID, wtx.IdempotencyKey)
	assert.Equal(t, models.PendingDebitSettled, pending.Status)

	stored, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerSettled, stored.LedgerStatus)
	assert.Equal(t, wtx.ID, stored.WalletTransactionID)

	account, err := l.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(d("60")))

	_, err = r.Settle(ctx, pending)
	assert.True(t, errors.Is(err, apperr.InvalidTransition))
}

func TestSettleFailureSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	r, _, store, clock := newTestReconciler(t)

	_, pending := createBookingWithDebit(t, store, "BK-RETRY", "cust-1", "40")

	store.failApply = 1
	_, err := r.Settle(ctx, pending)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.LedgerWriteFailed))

	stored, err := store.GetPendingDebit(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, "disk I/O error")
	assert.True(t, stored.NextAttemptAt.Equal(clock.Now().Add(5*time.Second)))

	// Not due yet.
	result, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)

	clock.Advance(5 * time.Second)
	result, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 1, Settled: 1}, result)

	stored, err = store.GetPendingDebit(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitSettled, stored.Status)
	assert.NotEmpty(t, stored.TransactionID)
}

func TestRetryAfterLostStampDebitsOnce(t *testing.T) {
	ctx := context.Background()
	r, l, store, clock := newTestReconciler(t)

	_, err := l.Credit(ctx, "cust-1", d("100"), "top-up")
	require.NoError(t, err)
	booking, pending := createBookingWithDebit(t, store, "BK-STAMP", "cust-1", "40")

	// The debit lands but marking the outbox row fails.
	store.failSettle = 1
	_, err = r.Settle(ctx, pending)
	require.Error(t, err)

	clock.Advance(time.Hour)
	result, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Settled)

	account, err := l.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(d("60")), "debited exactly once, got %s", account.Balance)

	history, err := l.History(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	stored, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, history[1].ID, stored.WalletTransactionID)
}

func TestExhaustedDebitGoesToDeadLetter(t *testing.T) {
	ctx := context.Background()
	dlq := &recordingDeadLetter{}
	r, _, store, clock := newTestReconciler(t, WithMaxAttempts(3), WithDeadLetter(dlq))

	booking, pending := createBookingWithDebit(t, store, "BK-DEAD", "cust-1", "25")
	store.failApply = 100

	for i := 0; i < 5; i++ {
		_, err := r.RunOnce(ctx)
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	stored, err := store.GetPendingDebit(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitDead, stored.Status)
	assert.Equal(t, 3, stored.Attempts)

	require.Len(t, dlq.entries, 1)
	assert.Equal(t, booking.ID, dlq.entries[0].BookingID)
	assert.Equal(t, "25.00", dlq.entries[0].Amount)
	assert.Equal(t, 3, dlq.entries[0].Attempts)

	dead, err := r.List(ctx, models.PendingDebitDead)
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}

func TestRunOnceDrainsInBatches(t *testing.T) {
	ctx := context.Background()
	r, l, store, _ := newTestReconciler(t, WithBatchSize(2))

	_, err := l.Credit(ctx, "cust-1", d("100"), "top-up")
	require.NoError(t, err)
	for _, ref := range []string{"BK-1", "BK-2", "BK-3", "BK-4", "BK-5"} {
		createBookingWithDebit(t, store, ref, "cust-1", "10")
	}

	result, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 5, Settled: 5}, result)

	account, err := l.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(d("50")))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	r, _, store, _ := newTestReconciler(t, WithMaxAttempts(1))

	booking, pending := createBookingWithDebit(t, store, "BK-RESOLVE", "cust-1", "25")
	store.failApply = 1
	_, err := r.Settle(ctx, pending)
	require.Error(t, err)
	require.Equal(t, models.PendingDebitDead, pending.Status)

	resolved, err := r.Resolve(ctx, pending.ID, "paid in cash at the desk")
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitResolved, resolved.Status)
	assert.Equal(t, "paid in cash at the desk", resolved.Note)

	stored, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerResolved, stored.LedgerStatus)

	_, err = r.Resolve(ctx, pending.ID, "again")
	assert.True(t, errors.Is(err, apperr.InvalidTransition))

	_, err = r.Resolve(ctx, "missing", "")
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestStaleSettleAfterResolveDoesNotDebit(t *testing.T) {
	ctx := context.Background()
	r, l, store, _ := newTestReconciler(t)

	_, err := l.Credit(ctx, "cust-1", d("100"), "top-up")
	require.NoError(t, err)
	booking, pending := createBookingWithDebit(t, store, "BK-STALE", "cust-1", "40")

	_, err = r.Resolve(ctx, pending.ID, "paid by card at the desk")
	require.NoError(t, err)

	// pending is the copy read before staff resolved the entry.
	require.Equal(t, models.PendingDebitPending, pending.Status)
	_, err = r.Settle(ctx, pending)
	assert.True(t, errors.Is(err, apperr.InvalidTransition), "got %v", err)
	assert.Equal(t, models.PendingDebitResolved, pending.Status)

	account, err := l.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(d("100")), "balance %s", account.Balance)

	stored, err := store.GetPendingDebit(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitResolved, stored.Status)
	assert.Equal(t, 0, stored.Attempts)

	storedBooking, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerResolved, storedBooking.LedgerStatus)
	assert.Empty(t, storedBooking.WalletTransactionID)
}

func TestResolveDuringDebitReversesIt(t *testing.T) {
	ctx := context.Background()
	r, l, store, _ := newTestReconciler(t)

	_, err := l.Credit(ctx, "cust-1", d("100"), "top-up")
	require.NoError(t, err)
	booking, pending := createBookingWithDebit(t, store, "BK-RACE", "cust-1", "40")

	store.beforeSettle = func(id, _ string) {
		require.NoError(t, store.SQLiteStore.ResolvePendingDebit(ctx, id, "comped", time.Now().UTC()))
	}

	result, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 1, Skipped: 1}, result)

	account, err := l.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(d("100")), "balance %s", account.Balance)

	history, err := l.History(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.TransactionDebit, history[1].Kind)
	assert.Equal(t, ReversalPrefix+history[1].ID, history[2].Reference)

	stored, err := store.GetPendingDebit(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitResolved, stored.Status)
	assert.Equal(t, "comped", stored.Note)

	storedBooking, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerResolved, storedBooking.LedgerStatus)
}

func TestConcurrentStampOfSameDebitSucceeds(t *testing.T) {
	ctx := context.Background()
	r, l, store, _ := newTestReconciler(t)

	_, err := l.Credit(ctx, "cust-1", d("100"), "top-up")
	require.NoError(t, err)
	booking, pending := createBookingWithDebit(t, store, "BK-TWICE", "cust-1", "40")

	store.beforeSettle = func(id, transactionID string) {
		require.NoError(t, store.SQLiteStore.SettlePendingDebit(ctx, id, transactionID, models.LedgerSettled, time.Now().UTC()))
	}

	wtx, err := r.Settle(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitSettled, pending.Status)
	assert.Equal(t, wtx.ID, pending.TransactionID)

	account, err := l.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(d("60")), "balance %s", account.Balance)

	storedBooking, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, wtx.ID, storedBooking.WalletTransactionID)
}

func TestShortDebitStampsBookingShort(t *testing.T) {
	ctx := context.Background()
	r, l, store, _ := newTestReconciler(t)

	_, err := l.Credit(ctx, "cust-1", d("25"), "top-up")
	require.NoError(t, err)
	booking, pending := createBookingWithDebit(t, store, "BK-SHORT", "cust-1", "40")

	wtx, err := r.Settle(ctx, pending)
	require.NoError(t, err)
	assert.True(t, wtx.AppliedAmount().Equal(d("25")))

	storedBooking, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerShort, storedBooking.LedgerStatus)
	assert.Equal(t, wtx.ID, storedBooking.WalletTransactionID)

	stored, err := store.GetPendingDebit(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitSettled, stored.Status)
}

func TestFailureAfterResolveKeepsResolution(t *testing.T) {
	ctx := context.Background()
	r, _, store, _ := newTestReconciler(t)

	_, pending := createBookingWithDebit(t, store, "BK-LATEFAIL", "cust-1", "40")
	stale := *pending

	_, err := r.Resolve(ctx, pending.ID, "paid in cash")
	require.NoError(t, err)

	err = r.recordFailure(ctx, &stale, errDiskIO)
	assert.True(t, errors.Is(err, apperr.InvalidTransition), "got %v", err)
	assert.Equal(t, models.PendingDebitResolved, stale.Status)

	stored, err := store.GetPendingDebit(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingDebitResolved, stored.Status)
	assert.Equal(t, 0, stored.Attempts)
	assert.Empty(t, stored.LastError)
}

func TestPendingDueGaugeCountsWholeBacklog(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	r, l, store, _ := newTestReconciler(t, WithBatchSize(2), WithReconcilerMetrics(metrics.New(reg)))

	_, err := l.Credit(ctx, "cust-1", d("100"), "top-up")
	require.NoError(t, err)
	for _, ref := range []string{"BK-G1", "BK-G2", "BK-G3", "BK-G4", "BK-G5"} {
		createBookingWithDebit(t, store, ref, "cust-1", "10")
	}

	_, err = r.RunOnce(ctx)
	require.NoError(t, err)

	expected := `
# HELP salonwise_pending_debits_due Pending debits that were due when the last reconciliation pass began
# TYPE salonwise_pending_debits_due gauge
salonwise_pending_debits_due 5
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "salonwise_pending_debits_due"))
}

func TestListRejectsUnknownStatus(t *testing.T) {
	r, _, _, _ := newTestReconciler(t)
	_, err := r.List(context.Background(), "bogus")
	assert.True(t, errors.Is(err, apperr.InvalidInput))
}

func TestStartSettlesInBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	l := New(store)
	r := NewReconciler(l, store, WithInterval(10*time.Millisecond))

	_, pending := createBookingWithDebit(t, store, "BK-BG", "cust-1", "5")
	done := r.Start(ctx)

	assert.Eventually(t, func() bool {
		p, err := store.GetPendingDebit(context.Background(), pending.ID)
		return err == nil && p.Status == models.PendingDebitSettled
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{8, 640 * time.Second},
		{9, 1280 * time.Second},
		{10, 30 * time.Minute},
		{50, 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestRedisDeadLetter(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	rdb, err := NewRedisClient(ctx, redisURL)
	require.NoError(t, err)
	defer rdb.Close()

	sink := &RedisDeadLetter{rdb: rdb, key: DeadLetterKey + ":test"}
	t.Cleanup(func() { rdb.Del(ctx, sink.key) })

	require.NoError(t, sink.Send(ctx, DeadLetterEntry{PendingDebitID: "pd-1", BookingID: "b-1", Amount: "10.00", Attempts: 8}))

	n, err := sink.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw, err := rdb.LPop(ctx, sink.key).Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"pending_debit_id":"pd-1"`)
}
