package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/soraiyu/KyuubiMask/internal/preferences"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or an error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedPreferencesStore adds read-aside caching to any preferences.Store. Writes go to the real
// store first and then invalidate the cached copy.
type CachedPreferencesStore struct {
	realStore preferences.Store
	cache     CacheClient
	ttl       time.Duration
	key       string
}

func NewCachedPreferencesStore(realStore preferences.Store, cache CacheClient, profileID string, ttl time.Duration) *CachedPreferencesStore {
	return &CachedPreferencesStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		key:       fmt.Sprintf("kyuubimask:prefs:%s", profileID),
	}
}

func (s *CachedPreferencesStore) Load(ctx context.Context) (preferences.Preferences, error) {
	var cached preferences.Preferences
	if err := s.cache.Get(ctx, s.key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.Load(ctx)
	if err != nil {
		return preferences.Preferences{}, err
	}

	// Caching is an optimization; a Redis outage falls back to the store.
	_ = s.cache.Set(ctx, s.key, fresh, s.ttl)
	return fresh, nil
}

func (s *CachedPreferencesStore) Save(ctx context.Context, prefs preferences.Preferences) error {
	if err := s.realStore.Save(ctx, prefs); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *CachedPreferencesStore) AddMaskedApp(ctx context.Context, source string) error {
	if err := s.realStore.AddMaskedApp(ctx, source); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

// RemoveMaskedApp must clear the cache even though the write already
// succeeded, otherwise another replica keeps masking with stale settings.
func (s *CachedPreferencesStore) RemoveMaskedApp(ctx context.Context, source string) error {
	if err := s.realStore.RemoveMaskedApp(ctx, source); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *CachedPreferencesStore) invalidate(ctx context.Context) error {
	return s.cache.Del(ctx, s.key)
}
