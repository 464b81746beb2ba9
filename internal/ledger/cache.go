package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const usageVersionKey = "stockroom:usage:version"

// UsageCache wraps Redis based caching of usage reports with a global
// version counter. Every ledger mutation bumps the version, so stale report
// payloads expire immediately without key enumeration.
type UsageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUsageCache instantiates the cache helper. A nil client degrades to a
// pass-through loader.
func NewUsageCache(client *redis.Client, ttl time.Duration) *UsageCache {
	return &UsageCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *UsageCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, usageVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, usageVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *UsageCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *UsageCache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("ledger: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates cached reports by incrementing the global version.
func (c *UsageCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, usageVersionKey).Err()
}

func usageKey(filter UsageFilter) []string {
	from, to := "", ""
	if !filter.From.IsZero() {
		from = filter.From.Format("2006-01-02")
	}
	if !filter.To.IsZero() {
		to = filter.To.Format("2006-01-02")
	}
	return []string{"stockroom", "usage", from, to}
}
