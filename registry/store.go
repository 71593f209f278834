package registry

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is the persisted form of a decision service.
type Record struct {
	ID        uuid.UUID
	Name      string
	Format    Format
	Source    []byte
	UpdatedAt time.Time
}

func (r *Record) clone() *Record {
	c := *r
	c.Source = slices.Clone(r.Source)
	return &c
}

// Store persists decision service sources so they survive restarts.
type Store interface {
	// Save inserts a record or replaces the one with the same name.
	Save(record *Record) error

	// Get a record by service name. Returns an error wrapping ErrNotFound
	// when there is none.
	Get(name string) (*Record, error)

	// List every record ordered by name.
	List() ([]*Record, error)

	// Delete a record by service name.
	Delete(name string) error

	// Ping checks that the store is reachable.
	Ping() error

	Close() error
}

// MemoryStore implements Store with a map. Nothing survives a restart.
type MemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Save(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Name] = record.clone()
	return nil
}

func (s *MemoryStore) Get(name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", name, ErrNotFound)
	}
	return r.clone(), nil
}

func (s *MemoryStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[name]; !ok {
		return fmt.Errorf("record %s: %w", name, ErrNotFound)
	}
	delete(s.records, name)
	return nil
}

func (s *MemoryStore) Ping() error { return nil }

func (s *MemoryStore) Close() error { return nil }
