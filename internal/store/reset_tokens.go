package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoResetToken is returned when no live reset token exists for an email.
var ErrNoResetToken = errors.New("no reset token")

// ResetTokenStore keeps the hash of the one live reset token per account.
// Issuing a new token replaces the previous one.
type ResetTokenStore struct {
	rdb *redis.Client
}

func NewResetTokenStore(rdb *redis.Client) *ResetTokenStore { return &ResetTokenStore{rdb: rdb} }

func resetKey(email string) string { return "reset:token:" + strings.ToLower(strings.TrimSpace(email)) }

func (s *ResetTokenStore) Put(ctx context.Context, email, tokenHash string, ttl time.Duration) error {
	return s.rdb.Set(ctx, resetKey(email), tokenHash, ttl).Err()
}

func (s *ResetTokenStore) Get(ctx context.Context, email string) (string, error) {
	h, err := s.rdb.Get(ctx, resetKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoResetToken
	}
	return h, err
}

func (s *ResetTokenStore) Delete(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, resetKey(email)).Err()
}
