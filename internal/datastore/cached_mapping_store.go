package datastore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/syncbridge/internal/migration"
)

// CachedMappingStore caches positive legacy id lookups of another MappingStore.
// Mappings never change once written. Misses always go to the wrapped store.
type CachedMappingStore struct {
	next  migration.MappingStore
	cache *cache.Cache
}

var _ migration.MappingStore = (*CachedMappingStore)(nil)

// NewCachedMappingStore wraps next with a lookup cache whose entries expire after ttl.
func NewCachedMappingStore(next migration.MappingStore, ttl time.Duration) *CachedMappingStore {
	return &CachedMappingStore{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (s *CachedMappingStore) GetByLegacyID(ctx context.Context, legacyID string) (*migration.MappingRecord, error) {
	if v, ok := s.cache.Get(legacyID); ok {
		rec := v.(migration.MappingRecord)
		return &rec, nil
	}
	rec, err := s.next.GetByLegacyID(ctx, legacyID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(legacyID, *rec)
	return rec, nil
}

func (s *CachedMappingStore) Create(ctx context.Context, record migration.MappingRecord) error {
	if err := s.next.Create(ctx, record); err != nil {
		return err
	}
	s.cache.SetDefault(record.LegacyID, record)
	return nil
}

func (s *CachedMappingStore) CountByLabel(ctx context.Context, label string) (int64, error) {
	return s.next.CountByLabel(ctx, label)
}

// ItemCount returns the number of cached mappings.
func (s *CachedMappingStore) ItemCount() int {
	return s.cache.ItemCount()
}
