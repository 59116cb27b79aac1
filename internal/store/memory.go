package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/i474232898/air-quality-features/internal/features"
)

// memoryGroup holds one feature group's schema and records.
type memoryGroup struct {
	definitions []string
	allowed     map[string]struct{}
	records     map[string][]features.FeatureValue
	eventTimes  map[string]float64
}

// MemoryStore is a concurrency-safe in-memory feature store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: feature group name
	groups map[string]*memoryGroup
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: make(map[string]*memoryGroup),
	}
}

// EnsureFeatureGroup creates the group with the given definitions if it does not exist.
func (s *MemoryStore) EnsureFeatureGroup(_ context.Context, group string, definitions []string) error {
	if len(definitions) == 0 {
		return fmt.Errorf("feature group %s: no feature definitions", group)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group]; ok {
		return nil
	}
	defs := append([]string(nil), definitions...)
	s.groups[group] = &memoryGroup{
		definitions: defs,
		allowed:     toSet(defs),
		records:     make(map[string][]features.FeatureValue),
		eventTimes:  make(map[string]float64),
	}
	return nil
}

// AllowedFields returns the group's feature names.
func (s *MemoryStore) AllowedFields(_ context.Context, group string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureGroupNotFound, group)
	}
	return toSet(g.definitions), nil
}

// PutRecord stores the record under its record_id, replacing any previous version.
func (s *MemoryStore) PutRecord(_ context.Context, group string, record []features.FeatureValue) error {
	id, eventTime, err := recordIdentity(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[group]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeatureGroupNotFound, group)
	}
	if err := checkFeatures(group, g.allowed, record); err != nil {
		return err
	}
	g.records[id] = append([]features.FeatureValue(nil), record...)
	g.eventTimes[id] = eventTime
	return nil
}

// GetRecord returns a stored record by id.
func (s *MemoryStore) GetRecord(_ context.Context, group, recordID string) ([]features.FeatureValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureGroupNotFound, group)
	}
	rec, ok := g.records[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]features.FeatureValue(nil), rec...), nil
}

// Len returns the number of records stored for a group.
func (s *MemoryStore) Len(group string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if g, ok := s.groups[group]; ok {
		return len(g.records)
	}
	return 0
}

// RecentRecordIDs returns up to n record ids, newest event_time first.
func (s *MemoryStore) RecentRecordIDs(_ context.Context, group string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureGroupNotFound, group)
	}
	ids := make([]string, 0, len(g.records))
	for id := range g.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := g.eventTimes[ids[i]], g.eventTimes[ids[j]]
		if ti != tj {
			return ti > tj
		}
		return ids[i] > ids[j]
	})
	if int64(len(ids)) > n {
		ids = ids[:n]
	}
	return ids, nil
}
