package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/identity-service/pkg/database"
)

// RedisTokenDenyList records revoked access-token ids in Redis until they expire
type RedisTokenDenyList struct {
	redis *database.Redis
}

// NewRedisTokenDenyList creates a Redis-backed deny list
func NewRedisTokenDenyList(redis *database.Redis) *RedisTokenDenyList {
	return &RedisTokenDenyList{redis: redis}
}

func denyListKey(tokenID string) string {
	return fmt.Sprintf("denylist:jti:%s", tokenID)
}

func sessionDenyListKey(sessionID string) string {
	return fmt.Sprintf("denylist:sid:%s", sessionID)
}

// Deny rejects the token id for ttl. Non-positive ttl is a no-op since the token has already expired.
func (d *RedisTokenDenyList) Deny(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	if err := d.redis.Client.Set(ctx, denyListKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to deny token: %w", err)
	}
	return nil
}

// DenySessions rejects every access token carrying one of sessionIDs for ttl
func (d *RedisTokenDenyList) DenySessions(ctx context.Context, sessionIDs []string, ttl time.Duration) error {
	if len(sessionIDs) == 0 || ttl <= 0 {
		return nil
	}
	pipe := d.redis.Client.Pipeline()
	for _, id := range sessionIDs {
		if id != "" {
			pipe.Set(ctx, sessionDenyListKey(id), "1", ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to deny sessions: %w", err)
	}
	return nil
}

// IsDenied checks whether the token id or its session has been revoked
func (d *RedisTokenDenyList) IsDenied(ctx context.Context, tokenID, sessionID string) (bool, error) {
	keys := make([]string, 0, 2)
	if tokenID != "" {
		keys = append(keys, denyListKey(tokenID))
	}
	if sessionID != "" {
		keys = append(keys, sessionDenyListKey(sessionID))
	}
	if len(keys) == 0 {
		return false, nil
	}
	exists, err := d.redis.Client.Exists(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token deny list: %w", err)
	}
	return exists > 0, nil
}
