package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AvailabilityCache holds a short-lived copy of each event's
// tickets_available.  It is advisory: it bounds the quantity form, while
// checkout always re-reads the database.
type AvailabilityCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAvailabilityCache(rdb *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{rdb: rdb, ttl: ttl}
}

func availabilityKey(eventID string) string { return "availability:" + eventID }

// Get returns the cached figure and whether it was present.
func (c *AvailabilityCache) Get(ctx context.Context, eventID string) (int, bool, error) {
	n, err := c.rdb.Get(ctx, availabilityKey(eventID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, eventID string, n int) error {
	return c.rdb.Set(ctx, availabilityKey(eventID), strconv.Itoa(n), c.ttl).Err()
}

// Invalidate drops the cached figure after a commit or cancellation.
func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, availabilityKey(eventID)).Err()
}
