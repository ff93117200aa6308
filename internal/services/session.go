package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// RevokedTokenKeyPrefix is the Redis key prefix for logged-out tokens
	RevokedTokenKeyPrefix = "revoked_token:"
)

// TokenRevoker remembers logged-out access tokens until they would have
// expired anyway. Without Redis, revocation is a no-op and every signed,
// unexpired token stays valid.
type TokenRevoker struct {
	rdb *redis.Client
	now func() time.Time
}

func NewTokenRevoker(rdb *redis.Client) *TokenRevoker {
	return &TokenRevoker{rdb: rdb, now: time.Now}
}

// Revoke marks token as unusable until expiresAt.
func (r *TokenRevoker) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if r == nil || r.rdb == nil || token == "" {
		return nil
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, revokedKey(token), "1", ttl).Err()
}

// IsRevoked reports whether token was revoked by a logout.
func (r *TokenRevoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	if r == nil || r.rdb == nil || token == "" {
		return false, nil
	}
	err := r.rdb.Get(ctx, revokedKey(token)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Tokens are hashed so raw credentials never sit in Redis.
func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return RevokedTokenKeyPrefix + hex.EncodeToString(sum[:])
}
