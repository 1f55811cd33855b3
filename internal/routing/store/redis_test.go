// internal/routing/store/redis_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crisis-routing/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testBlackout(childID, signalID string, ttl time.Duration) *models.SignalBlackout {
	now := time.Now().UTC()
	return &models.SignalBlackout{
		ChildID:   childID,
		SignalID:  signalID,
		StartedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// ==========================
// Blackout Store Tests
// ==========================

func TestRedisBlackoutStore_PutAndGet(t *testing.T) {
	_, client := setupMiniredis(t)
	s := NewRedisBlackoutStore(client)
	ctx := context.Background()

	blackout := testBlackout("child-1", "sig-1", 48*time.Hour)
	require.NoError(t, s.Put(ctx, blackout))

	got, err := s.Get(ctx, "child-1", "sig-1")
	require.NoError(t, err)
	assert.Equal(t, "child-1", got.ChildID)
	assert.Equal(t, "sig-1", got.SignalID)
	assert.WithinDuration(t, blackout.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestRedisBlackoutStore_GetMissing(t *testing.T) {
	_, client := setupMiniredis(t)
	s := NewRedisBlackoutStore(client)

	_, err := s.Get(context.Background(), "child-1", "absent")
	assert.Equal(t, ErrNotFound, err)
}

func TestRedisBlackoutStore_ActiveForChild(t *testing.T) {
	_, client := setupMiniredis(t)
	s := NewRedisBlackoutStore(client)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testBlackout("child-1", "sig-1", 48*time.Hour)))

	active, err := s.ActiveForChild(ctx, "child-1")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = s.ActiveForChild(ctx, "child-2")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRedisBlackoutStore_WindowExpires(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisBlackoutStore(client)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testBlackout("child-1", "sig-1", time.Minute)))

	mr.FastForward(2 * time.Minute)

	active, err := s.ActiveForChild(ctx, "child-1")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = s.Get(ctx, "child-1", "sig-1")
	assert.Equal(t, ErrNotFound, err)
}

func TestRedisBlackoutStore_RejectsExpiredWindow(t *testing.T) {
	_, client := setupMiniredis(t)
	s := NewRedisBlackoutStore(client)

	err := s.Put(context.Background(), testBlackout("child-1", "sig-1", -time.Minute))
	assert.Error(t, err)
}

// ==========================
// Cached Partner Store Tests
// ==========================

type countingPartnerStore struct {
	backing PartnerStore
	calls   int
}

func (c *countingPartnerStore) Registry(ctx context.Context) (*models.PartnerRegistry, error) {
	c.calls++
	return c.backing.Registry(ctx)
}

func (c *countingPartnerStore) Partners(ctx context.Context) ([]models.CrisisPartnerConfig, error) {
	c.calls++
	return c.backing.Partners(ctx)
}

func TestCachedPartnerStore_ServesFromCache(t *testing.T) {
	_, client := setupMiniredis(t)
	ctx := context.Background()

	backing := &countingPartnerStore{backing: NewMemoryPartnerStore(
		&models.PartnerRegistry{
			JurisdictionMap:  map[string][]string{"US-CA": {"partner-1"}},
			FallbackPartners: []string{"partner-national"},
		},
		[]models.CrisisPartnerConfig{{PartnerID: "partner-1", Status: models.PartnerStatusActive}},
	)}
	s := NewCachedPartnerStore(backing, client, time.Minute)

	first, err := s.Registry(ctx)
	require.NoError(t, err)
	second, err := s.Registry(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.JurisdictionMap, second.JurisdictionMap)
	assert.Equal(t, 1, backing.calls)
}

func TestCachedPartnerStore_CacheExpiry(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()

	backing := &countingPartnerStore{backing: NewMemoryPartnerStore(
		&models.PartnerRegistry{JurisdictionMap: map[string][]string{}},
		nil,
	)}
	s := NewCachedPartnerStore(backing, client, time.Minute)

	_, err := s.Partners(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = s.Partners(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}
