// Package store holds the Redis-backed state of the booking and account
// workflows: parked booking intents, password reset wizard state, reset
// token hashes and the advisory availability figure.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSONStore keeps one JSON-encoded value per id under prefix:id with a
// fixed time to live.  A booking intent store keyed by browser tab and the
// reset wizard store keyed by flow id are both instances of it.
type JSONStore[T any] struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewJSONStore returns a store writing keys "<prefix>:<id>".
func NewJSONStore[T any](rdb *redis.Client, prefix string, ttl time.Duration) *JSONStore[T] {
	return &JSONStore[T]{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *JSONStore[T]) key(id string) string { return s.prefix + ":" + id }

// Save overwrites the value stored for id and restarts its TTL.
func (s *JSONStore[T]) Save(ctx context.Context, id string, v T) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.prefix, err)
	}
	return s.rdb.Set(ctx, s.key(id), string(body), s.ttl).Err()
}

// Load returns the value stored for id, or nil when there is none.
func (s *JSONStore[T]) Load(ctx context.Context, id string) (*T, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.prefix, err)
	}
	return &v, nil
}

// Delete removes the value stored for id.  Deleting a missing id is not an error.
func (s *JSONStore[T]) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}
