package visits

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "visits:"
	dayLayout  = "2006-01-02"
	keyTTL     = 35 * 24 * time.Hour
	weeklyDays = 7
	monthDays  = 30
)

// Counter records unique visitors per day
type Counter interface {
	Record(ctx context.Context, visitorID string) error
	// Totals returns unique visitors over the last 7 and 30 UTC days, today included.
	Totals(ctx context.Context, now time.Time) (weekly, monthly int64, err error)
}

// NoopCounter is used without Redis and always reports zero visits.
type NoopCounter struct{}

// Record does nothing
func (NoopCounter) Record(context.Context, string) error { return nil }

// Totals reports zeros
func (NoopCounter) Totals(context.Context, time.Time) (int64, int64, error) { return 0, 0, nil }

// RedisCounter keeps one HyperLogLog per UTC day.
type RedisCounter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCounter creates a counter on client
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, now: time.Now}
}

func dayKey(t time.Time) string {
	return keyPrefix + t.UTC().Format(dayLayout)
}

// Record adds visitorID to today's set
func (c *RedisCounter) Record(ctx context.Context, visitorID string) error {
	if visitorID == "" {
		return nil
	}
	key := dayKey(c.now())
	pipe := c.client.TxPipeline()
	pipe.PFAdd(ctx, key, visitorID)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

func daysBack(now time.Time, n int) []string {
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, dayKey(now.AddDate(0, 0, -i)))
	}
	return keys
}

// Totals merges the daily sets with PFCOUNT so visitors are counted once per window.
func (c *RedisCounter) Totals(ctx context.Context, now time.Time) (int64, int64, error) {
	weekly, err := c.client.PFCount(ctx, daysBack(now, weeklyDays)...).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("count weekly visits: %w", err)
	}
	monthly, err := c.client.PFCount(ctx, daysBack(now, monthDays)...).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("count monthly visits: %w", err)
	}
	return weekly, monthly, nil
}
