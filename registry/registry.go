// Package registry owns the set of loaded decision services. Services are
// built completely before they are swapped in, so readers never see a
// partially loaded one.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/decisioncentral/decision"
)

// Entry is a registered decision service.
type Entry struct {
	ID        uuid.UUID
	Name      string
	Format    Format
	Service   decision.Service
	UpdatedAt time.Time
}

// Registry maps service names to loaded services and keeps the store in
// step with them.
type Registry struct {
	entries   map[string]*Entry
	store     Store
	build     Builder
	listeners []func(name string)
	now       func() time.Time
	mu        sync.RWMutex
	// writeMu is held from the store write to the map update so the store
	// and the map always agree on which names exist.
	writeMu sync.Mutex
}

// New creates an empty registry. A nil build uses Build.
func New(store Store, build Builder) *Registry {
	if build == nil {
		build = Build
	}
	return &Registry{
		entries: make(map[string]*Entry),
		store:   store,
		build:   build,
		now:     time.Now,
	}
}

// OnChange registers fn to be called after a service is registered or
// deleted. Listeners must not call back into the registry's write methods.
func (r *Registry) OnChange(fn func(name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Register builds a service from source, persists it and swaps it in under
// name, replacing any service already there. A source the engine rejects
// yields a *ValidationError carrying the engine's errors.
func (r *Registry) Register(name string, format Format, source []byte) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	svc, status := r.build(format, source)
	if !status.OK() {
		return Entry{}, &ValidationError{Name: name, Errors: status.Errors}
	}

	entry, err := r.save(name, format, source, svc)
	if err != nil {
		return Entry{}, err
	}
	r.notify(name)
	return entry, nil
}

func (r *Registry) save(name string, format Format, source []byte, svc decision.Service) (Entry, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	id := uuid.New()
	if existing, ok := r.entries[name]; ok {
		id = existing.ID
	}
	r.mu.RUnlock()

	record := &Record{ID: id, Name: name, Format: format, Source: source, UpdatedAt: r.now().UTC()}
	if err := r.store.Save(record); err != nil {
		return Entry{}, fmt.Errorf("failed to persist %s: %w", name, err)
	}
	return r.swapIn(record, svc), nil
}

func (r *Registry) swapIn(record *Record, svc decision.Service) Entry {
	entry := &Entry{
		ID:        record.ID,
		Name:      record.Name,
		Format:    record.Format,
		Service:   svc,
		UpdatedAt: record.UpdatedAt,
	}
	r.mu.Lock()
	r.entries[record.Name] = entry
	r.mu.Unlock()
	return *entry
}

// Get retrieves the service registered under name.
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("service %s: %w", name, ErrNotFound)
	}
	return *e, nil
}

// Delete removes a service from the registry and the store.
func (r *Registry) Delete(name string) error {
	if err := r.remove(name); err != nil {
		return err
	}
	r.notify(name)
	return nil
}

func (r *Registry) remove(name string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	_, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("service %s: %w", name, ErrNotFound)
	}

	if err := r.store.Delete(name); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
	return nil
}

// List returns every registered service ordered by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// LoadAll rebuilds every service held by the store. Services that no longer
// build are skipped and reported together; the rest are registered.
func (r *Registry) LoadAll() (int, error) {
	records, err := r.store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch decision services: %w", err)
	}

	loaded := 0
	var errs []error
	for _, record := range records {
		svc, status := r.build(record.Format, record.Source)
		if !status.OK() {
			errs = append(errs, &ValidationError{Name: record.Name, Errors: status.Errors})
			continue
		}
		r.writeMu.Lock()
		r.swapIn(record, svc)
		r.writeMu.Unlock()
		r.notify(record.Name)
		loaded++
	}
	return loaded, errors.Join(errs...)
}

// Ping checks the backing store.
func (r *Registry) Ping() error {
	return r.store.Ping()
}

func (r *Registry) notify(name string) {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(name)
	}
}
