// Package memory is an in-process store.RecordStore.
//
// Insert does not check for an existing code, so concurrent find-then-insert
// sequences that are not serialized by the caller can produce duplicates.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/edgeflare/catalogd/pkg/catalog"
	"github.com/edgeflare/catalogd/pkg/store"
	"github.com/google/uuid"
)

type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID]catalog.Record
	order   []uuid.UUID
}

func New() *Store {
	return &Store{records: make(map[uuid.UUID]catalog.Record)}
}

func (s *Store) FindByKey(_ context.Context, code int) (*store.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if rec := s.records[id]; rec.Code == code {
			return store.Bind(id, rec), nil
		}
	}
	return nil, nil
}

func (s *Store) Insert(_ context.Context, rec catalog.Record) (*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.records[id] = rec
	s.order = append(s.order, id)
	return store.Bind(id, rec), nil
}

func (s *Store) Update(_ context.Context, e *store.Entry) error {
	if !e.Bound() {
		return store.ErrUnbound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[e.Identity()]; !ok {
		return catalog.ErrNotFound
	}
	s.records[e.Identity()] = e.Record
	return nil
}

func (s *Store) DeleteByKey(_ context.Context, code int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := false
	s.order = slices.DeleteFunc(s.order, func(id uuid.UUID) bool {
		if s.records[id].Code != code {
			return false
		}
		delete(s.records, id)
		deleted = true
		return true
	})
	return deleted, nil
}

func (s *Store) List(_ context.Context) ([]catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	slices.SortStableFunc(out, func(a, b catalog.Record) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

// Count returns how many records are stored for code.
func (s *Store) Count(code int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.Code == code {
			n++
		}
	}
	return n
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ store.RecordStore = (*Store)(nil)
