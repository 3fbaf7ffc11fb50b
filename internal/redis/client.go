package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client provides per-booking advisory locks and alert-dedupe keys. Locks
// serialize booking mutation across concurrent scans and processes; dedupe
// keys suppress repeat notifications for an unchanged conflict.
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

func lockKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("lock:booking:%s", bookingID)
}

// AcquireBookingLock takes the advisory lock for a booking. Returns false
// without error when another holder has it; the caller should skip the
// booking rather than wait.
func (c *Client) AcquireBookingLock(ctx context.Context, bookingID uuid.UUID, holder string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, lockKey(bookingID), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire booking lock: %w", err)
	}
	return ok, nil
}

// ReleaseBookingLock drops the advisory lock for a booking.
func (c *Client) ReleaseBookingLock(ctx context.Context, bookingID uuid.UUID) error {
	return c.client.Del(ctx, lockKey(bookingID)).Err()
}

// MarkAlerted records that an alert for the booking at the given severity
// has been sent. Returns false when an identical alert was already recorded
// within the TTL, meaning the caller should not notify again.
func (c *Client) MarkAlerted(ctx context.Context, bookingID uuid.UUID, severity string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("alerted:%s:%s", bookingID, severity)
	fresh, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark alert: %w", err)
	}
	return fresh, nil
}

// ClearAlerted removes the dedupe markers for a booking, so the next
// conflict alerts again. Called when weather clears.
func (c *Client) ClearAlerted(ctx context.Context, bookingID uuid.UUID) error {
	keys := []string{
		fmt.Sprintf("alerted:%s:%s", bookingID, "none"),
		fmt.Sprintf("alerted:%s:%s", bookingID, "warning"),
		fmt.Sprintf("alerted:%s:%s", bookingID, "critical"),
	}
	return c.client.Del(ctx, keys...).Err()
}
