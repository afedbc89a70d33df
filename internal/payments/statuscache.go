package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/payflow/payflow/internal/gateway"
)

// StatusCache keeps the last-known status per transaction in redis. It feeds
// the degraded path when a provider's status endpoint is unreachable.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache constructs the cache.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(provider gateway.ProviderID, transactionID string) string {
	return fmt.Sprintf("payments:status:%s:%s", provider, transactionID)
}

// Store records the latest observed status.
func (c *StatusCache) Store(ctx context.Context, provider gateway.ProviderID, transactionID string, status gateway.Status) error {
	if c == nil || c.client == nil || transactionID == "" {
		return nil
	}
	return c.client.Set(ctx, statusKey(provider, transactionID), string(status), c.ttl).Err()
}

// Get returns the last-known status, if any.
func (c *StatusCache) Get(ctx context.Context, provider gateway.ProviderID, transactionID string) (gateway.Status, bool, error) {
	if c == nil || c.client == nil {
		return gateway.StatusUnknown, false, nil
	}
	value, err := c.client.Get(ctx, statusKey(provider, transactionID)).Result()
	if err == redis.Nil {
		return gateway.StatusUnknown, false, nil
	}
	if err != nil {
		return gateway.StatusUnknown, false, err
	}
	return gateway.Status(value), true, nil
}
