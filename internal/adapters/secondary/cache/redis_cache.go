package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

var _ ports.ProfileCache = (*RedisProfileCache)(nil)

// RedisProfileCache stores normalized profiles as JSON under "profile:<session>".
// Each owner id also has a set "profile-owner:<id>" listing its session keys.
type RedisProfileCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisProfileCache(client redis.UniversalClient, ttl time.Duration) *RedisProfileCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisProfileCache{client: client, ttl: ttl}
}

func key(session string) string {
	return fmt.Sprintf("profile:%s", session)
}

// ownerKey is case-insensitive, like profile ids.
func ownerKey(ownerID string) string {
	return fmt.Sprintf("profile-owner:%s", strings.ToLower(ownerID))
}

func (r *RedisProfileCache) Get(ctx context.Context, session string) (*domain.Profile, error) {
	data, err := r.client.Get(ctx, key(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt entry is a miss; the next Put overwrites it.
		return nil, nil
	}
	return &p, nil
}

func (r *RedisProfileCache) Put(ctx context.Context, session string, profile domain.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key(session), data, r.ttl)
	if owner := profile.Owner.ID; owner != "" {
		pipe.SAdd(ctx, ownerKey(owner), session)
		pipe.Expire(ctx, ownerKey(owner), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (r *RedisProfileCache) Invalidate(ctx context.Context, session string) error {
	return r.client.Del(ctx, key(session)).Err()
}

// InvalidateProfile deletes every session entry indexed under the owner id,
// then the index itself.
func (r *RedisProfileCache) InvalidateProfile(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return nil
	}
	sessions, err := r.client.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}

	keys := make([]string, 0, len(sessions)+1)
	for _, s := range sessions {
		keys = append(keys, key(s))
	}
	keys = append(keys, ownerKey(ownerID))
	return r.client.Del(ctx, keys...).Err()
}
