package store

import (
	"context"
	"sync"
	"time"

	"crisis-routing/internal/models"
)

// MemoryRecordStore is an in-memory RecordStore for tests and development.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*models.RoutingRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]*models.RoutingRecord)}
}

func (s *MemoryRecordStore) Create(_ context.Context, record *models.RoutingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *MemoryRecordStore) Get(_ context.Context, id string) (*models.RoutingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryRecordStore) Transition(_ context.Context, id string, next models.RoutingStatus, apply func(*models.RoutingRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if record.Status.IsTerminal() {
		return ErrTerminal
	}
	if !record.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	record.Status = next
	if apply != nil {
		apply(record)
	}
	return nil
}

func (s *MemoryRecordStore) Annotate(_ context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	record.Annotations = append(record.Annotations, note)
	return nil
}

func (s *MemoryRecordStore) ListStale(_ context.Context, cutoff time.Time) ([]*models.RoutingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*models.RoutingRecord
	for _, record := range s.records {
		if !record.Status.IsTerminal() && record.StartedAt.Before(cutoff) {
			clone := *record
			stale = append(stale, &clone)
		}
	}
	return stale, nil
}

// MemoryPartnerStore serves a fixed registry snapshot. Used in tests and as
// the cache value type for the redis-backed store.
type MemoryPartnerStore struct {
	mu       sync.RWMutex
	registry *models.PartnerRegistry
	partners []models.CrisisPartnerConfig
}

func NewMemoryPartnerStore(registry *models.PartnerRegistry, partners []models.CrisisPartnerConfig) *MemoryPartnerStore {
	return &MemoryPartnerStore{registry: registry, partners: partners}
}

func (s *MemoryPartnerStore) Registry(_ context.Context) (*models.PartnerRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry, nil
}

func (s *MemoryPartnerStore) Partners(_ context.Context) ([]models.CrisisPartnerConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CrisisPartnerConfig, len(s.partners))
	copy(out, s.partners)
	return out, nil
}

// MemoryBlackoutStore is an in-memory BlackoutStore for tests.
type MemoryBlackoutStore struct {
	mu        sync.RWMutex
	blackouts map[string]*models.SignalBlackout
}

func NewMemoryBlackoutStore() *MemoryBlackoutStore {
	return &MemoryBlackoutStore{blackouts: make(map[string]*models.SignalBlackout)}
}

func blackoutKey(childID, signalID string) string {
	return childID + ":" + signalID
}

func (s *MemoryBlackoutStore) Put(_ context.Context, blackout *models.SignalBlackout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *blackout
	s.blackouts[blackoutKey(blackout.ChildID, blackout.SignalID)] = &clone
	return nil
}

func (s *MemoryBlackoutStore) Get(_ context.Context, childID, signalID string) (*models.SignalBlackout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blackout, ok := s.blackouts[blackoutKey(childID, signalID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *blackout
	return &clone, nil
}

func (s *MemoryBlackoutStore) ActiveForChild(_ context.Context, childID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	for _, blackout := range s.blackouts {
		if blackout.ChildID == childID && blackout.Active(now) {
			return true, nil
		}
	}
	return false, nil
}
