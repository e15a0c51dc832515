package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps the Redis connection used for scan coordination
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// AcquireScanLock takes the per-source advisory lock so only one discovery or
// batch run touches a source at a time, across all instances. Returns false
// when another run already holds it. The TTL bounds how long a crashed run
// can block a source.
func (c *Client) AcquireScanLock(ctx context.Context, source string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, scanLockKey(source), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// ReleaseScanLock drops the per-source advisory lock
func (c *Client) ReleaseScanLock(ctx context.Context, source string) error {
	return c.rdb.Del(ctx, scanLockKey(source)).Err()
}

func scanLockKey(source string) string {
	return "scanlock:" + source
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
