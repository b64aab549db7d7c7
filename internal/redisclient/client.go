package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"babymuse/internal/models"

	"github.com/go-redis/redis/v8"
)

const couponCacheTTL = 5 * time.Minute

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetCachedCoupon returns a cached coupon read model, or nil on miss
func (c *Client) GetCachedCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("coupon:%s", code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var coupon models.Coupon
	if err := json.Unmarshal(data, &coupon); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached coupon: %w", err)
	}
	return &coupon, nil
}

// CacheCoupon stores a coupon read model with a short TTL. times_used is
// advisory only; the settlement path re-checks the limit atomically in the
// database.
func (c *Client) CacheCoupon(ctx context.Context, coupon *models.Coupon) error {
	data, err := json.Marshal(coupon)
	if err != nil {
		return fmt.Errorf("failed to marshal coupon: %w", err)
	}
	return c.rdb.Set(ctx, fmt.Sprintf("coupon:%s", coupon.Code), data, couponCacheTTL).Err()
}

// InvalidateCoupon drops a coupon from the cache
func (c *Client) InvalidateCoupon(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("coupon:%s", code)).Err()
}

// IsEventSeen reports whether a gateway event id is in the dedup cache.
// Fast path of webhook dedup; the database processed_events table is the
// durable guard behind it.
func (c *Client) IsEventSeen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf("gateway-event:%s", eventID)).Result()
	return n > 0, err
}

// MarkEventSeen records a handled gateway event id, returning false when the
// id was already present. Written only after processing so a failed event
// stays retryable.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("gateway-event:%s", eventID), "1", ttl).Result()
}

// AcquireSettlementLock serializes concurrent settlement attempts for one order
func (c *Client) AcquireSettlementLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("settle-lock:%d", orderID), "1", ttl).Result()
}

// ReleaseSettlementLock releases a settlement lock
func (c *Client) ReleaseSettlementLock(ctx context.Context, orderID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("settle-lock:%d", orderID)).Err()
}
