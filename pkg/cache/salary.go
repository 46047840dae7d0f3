package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no cached entry exists for a key.
var ErrMiss = errors.New("cache: miss")

// SalaryCache is a read-through cache for monthly salary listings. Entries
// are invalidated whenever a recompute touches the period.
type SalaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSalaryCache wraps a redis client. A nil client disables caching.
func NewSalaryCache(client *redis.Client, ttl time.Duration) *SalaryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SalaryCache{client: client, ttl: ttl}
}

func periodKey(month, year int) string {
	return fmt.Sprintf("salary:summaries:%04d-%02d", year, month)
}

// Get loads the cached listing for a period into dest.
func (c *SalaryCache) Get(ctx context.Context, month, year int, dest interface{}) error {
	if c == nil || c.client == nil {
		return ErrMiss
	}
	raw, err := c.client.Get(ctx, periodKey(month, year)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Set stores the listing for a period.
func (c *SalaryCache) Set(ctx context.Context, month, year int, value interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, periodKey(month, year), raw, c.ttl).Err()
}

// Invalidate drops the cached listing for a period.
func (c *SalaryCache) Invalidate(ctx context.Context, month, year int) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, periodKey(month, year)).Err()
}
