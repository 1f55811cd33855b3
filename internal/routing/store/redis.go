package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crisis-routing/internal/models"
)

const (
	blackoutSignalKeyPrefix = "blackout:signal:"
	blackoutChildKeyPrefix  = "blackout:child:"

	registryCacheKey = "partners:registry"
	partnersCacheKey = "partners:configs"
)

// RedisBlackoutStore keeps blackout windows as TTL-keyed entries so expiry is
// enforced by the store itself and the window can never be read past its end.
type RedisBlackoutStore struct {
	client *redis.Client
}

func NewRedisBlackoutStore(client *redis.Client) *RedisBlackoutStore {
	return &RedisBlackoutStore{client: client}
}

func (s *RedisBlackoutStore) Put(ctx context.Context, blackout *models.SignalBlackout) error {
	ttl := time.Until(blackout.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("blackout already expired")
	}

	raw, err := json.Marshal(blackout)
	if err != nil {
		return fmt.Errorf("encode blackout: %w", err)
	}

	signalKey := blackoutSignalKeyPrefix + blackout.ChildID + ":" + blackout.SignalID
	if err := s.client.Set(ctx, signalKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store blackout: %w", err)
	}

	// Child-level marker lets the notification gate answer "is any window
	// open for this child" without scanning.
	childKey := blackoutChildKeyPrefix + blackout.ChildID
	if err := s.client.Set(ctx, childKey, blackout.SignalID, ttl).Err(); err != nil {
		return fmt.Errorf("store blackout marker: %w", err)
	}
	return nil
}

func (s *RedisBlackoutStore) Get(ctx context.Context, childID, signalID string) (*models.SignalBlackout, error) {
	raw, err := s.client.Get(ctx, blackoutSignalKeyPrefix+childID+":"+signalID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch blackout: %w", err)
	}

	var blackout models.SignalBlackout
	if err := json.Unmarshal(raw, &blackout); err != nil {
		return nil, fmt.Errorf("decode blackout: %w", err)
	}
	return &blackout, nil
}

func (s *RedisBlackoutStore) ActiveForChild(ctx context.Context, childID string) (bool, error) {
	n, err := s.client.Exists(ctx, blackoutChildKeyPrefix+childID).Result()
	if err != nil {
		return false, fmt.Errorf("check blackout marker: %w", err)
	}
	return n > 0, nil
}

// CachedPartnerStore caches the read-only partner snapshot in redis with a
// short TTL in front of a slower backing store. Selection stays a pure
// function over whichever snapshot it is handed.
type CachedPartnerStore struct {
	backing PartnerStore
	client  *redis.Client
	ttl     time.Duration
}

func NewCachedPartnerStore(backing PartnerStore, client *redis.Client, ttl time.Duration) *CachedPartnerStore {
	return &CachedPartnerStore{backing: backing, client: client, ttl: ttl}
}

func (s *CachedPartnerStore) Registry(ctx context.Context) (*models.PartnerRegistry, error) {
	var registry models.PartnerRegistry
	if ok := s.fromCache(ctx, registryCacheKey, &registry); ok {
		return &registry, nil
	}

	fresh, err := s.backing.Registry(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, registryCacheKey, fresh)
	return fresh, nil
}

func (s *CachedPartnerStore) Partners(ctx context.Context) ([]models.CrisisPartnerConfig, error) {
	var partners []models.CrisisPartnerConfig
	if ok := s.fromCache(ctx, partnersCacheKey, &partners); ok {
		return partners, nil
	}

	fresh, err := s.backing.Partners(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, partnersCacheKey, fresh)
	return fresh, nil
}

func (s *CachedPartnerStore) fromCache(ctx context.Context, key string, out interface{}) bool {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (s *CachedPartnerStore) toCache(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	// Cache population is best effort.
	_ = s.client.Set(ctx, key, raw, s.ttl).Err()
}
