package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const cycleLockKey = "lock:sync-cycle"

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetStockSnapshot caches a mapping's quantity view for fast reads
func (c *Client) SetStockSnapshot(ctx context.Context, sku string, total, reserved, available int) error {
	key := fmt.Sprintf("stock:%s", sku)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "total", total)
	pipe.HSet(ctx, key, "reserved", reserved)
	pipe.HSet(ctx, key, "available", available)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStockSnapshot retrieves the cached quantity view for a SKU
func (c *Client) GetStockSnapshot(ctx context.Context, sku string) (total, reserved, available int, err error) {
	key := fmt.Sprintf("stock:%s", sku)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, 0, fmt.Errorf("stock snapshot not found for sku %s", sku)
	}

	fmt.Sscanf(result["total"], "%d", &total)
	fmt.Sscanf(result["reserved"], "%d", &reserved)
	fmt.Sscanf(result["available"], "%d", &available)

	return total, reserved, available, nil
}

// AcquireCycleLock takes the cluster-wide reconciliation lock. Returns the
// owner token when acquired, empty string when another instance holds it.
func (c *Client) AcquireCycleLock(ctx context.Context, ttl time.Duration) (string, error) {
	owner := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, cycleLockKey, owner, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("cycle lock setnx failed: %w", err)
	}
	if !ok {
		return "", nil
	}
	return owner, nil
}

// ReleaseCycleLock frees the reconciliation lock only while we still own it.
// Compare and delete run as one Lua script, so a lock that expired and was
// reacquired elsewhere is never deleted by the stale owner.
func (c *Client) ReleaseCycleLock(ctx context.Context, owner string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{cycleLockKey}, owner).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
