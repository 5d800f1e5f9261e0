package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/salonwise/internal/models"
)

// DeadLetterKey is the Redis list that collects exhausted wallet debits.
const DeadLetterKey = "dlq:wallet-debits"

// DeadLetterEntry describes a pending debit that ran out of retries.
type DeadLetterEntry struct {
	PendingDebitID string `json:"pending_debit_id"`
	BookingID      string `json:"booking_id"`
	CustomerID     string `json:"customer_id"`
	Amount         string `json:"amount"`
	Reason         string `json:"reason"`
	Attempts       int    `json:"attempts"`
	FailedAt       string `json:"failed_at"` // RFC 3339
}

func newDeadLetterEntry(p *models.PendingDebit, at time.Time) DeadLetterEntry {
	return DeadLetterEntry{
		PendingDebitID: p.ID,
		BookingID:      p.BookingID,
		CustomerID:     p.CustomerID,
		Amount:         p.Amount.StringFixed(2),
		Reason:         p.LastError,
		Attempts:       p.Attempts,
		FailedAt:       at.UTC().Format(time.RFC3339),
	}
}

// DeadLetter receives pending debits that need manual attention.
// The pending_debits row stays the source of truth; a sink is a notification.
type DeadLetter interface {
	Send(ctx context.Context, entry DeadLetterEntry) error
}

// LogDeadLetter only logs. It is the sink used when Redis is not configured.
type LogDeadLetter struct{}

func (LogDeadLetter) Send(_ context.Context, entry DeadLetterEntry) error {
	slog.Error("Wallet debit moved to dead letter",
		"pending_debit_id", entry.PendingDebitID,
		"booking_id", entry.BookingID,
		"customer_id", entry.CustomerID,
		"amount", entry.Amount,
		"attempts", entry.Attempts,
		"reason", entry.Reason,
	)
	return nil
}

// RedisDeadLetter pushes entries onto a Redis list for operators to inspect.
type RedisDeadLetter struct {
	rdb *redis.Client
	key string
}

// NewRedisDeadLetter creates a sink writing to DeadLetterKey.
func NewRedisDeadLetter(rdb *redis.Client) *RedisDeadLetter {
	return &RedisDeadLetter{rdb: rdb, key: DeadLetterKey}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (d *RedisDeadLetter) Send(ctx context.Context, entry DeadLetterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter entry: %w", err)
	}

	if err := d.rdb.LPush(ctx, d.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter entry: %w", err)
	}

	slog.Warn("Wallet debit moved to dead letter",
		"dlq_key", d.key,
		"pending_debit_id", entry.PendingDebitID,
		"booking_id", entry.BookingID,
		"attempts", entry.Attempts,
	)
	return nil
}

// Length returns the number of entries waiting in the list.
func (d *RedisDeadLetter) Length(ctx context.Context) (int64, error) {
	return d.rdb.LLen(ctx, d.key).Result()
}
