// Package registry holds the process-wide membership of live connections.
//
// Connections are partitioned into observers and producers. The Registry is the only
// owner of that state; callers get copies, never the underlying collections.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/pscheid92/wardwatch/internal/domain"
)

type entry struct {
	role     domain.Role
	producer *domain.ProducerRecord
}

type Registry struct {
	mu      sync.RWMutex
	entries map[domain.ConnectionID]*entry
	// producer connection ids in registration order; compacted lazily on Remove
	order []domain.ConnectionID
}

func New() *Registry {
	return &Registry{entries: make(map[domain.ConnectionID]*entry)}
}

// Track makes a freshly accepted connection known as unclassified.
// Tracking an id twice is a no-op.
func (r *Registry) Track(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return
	}
	r.entries[id] = &entry{role: domain.RoleUnclassified}
}

// Classify assigns the role of a tracked connection exactly once. For producers
// the returned record is the immutable identity stored for the connection.
func (r *Registry) Classify(id domain.ConnectionID, role domain.Role, producerID, displayName string, at time.Time) (*domain.ProducerRecord, error) {
	if role != domain.RoleObserver && role != domain.RoleProducer {
		return nil, fmt.Errorf("classify %s as %s: %w", id, role, domain.ErrProtocolViolation)
	}
	if role == domain.RoleProducer && (producerID == "" || displayName == "") {
		return nil, fmt.Errorf("classify %s: %w", id, domain.ErrMissingIdentity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[id]
	if !exists {
		return nil, fmt.Errorf("classify %s: %w", id, domain.ErrUnknownConnection)
	}
	if e.role != domain.RoleUnclassified {
		return nil, fmt.Errorf("classify %s (already %s): %w", id, e.role, domain.ErrAlreadyClassified)
	}

	e.role = role
	if role == domain.RoleObserver {
		return nil, nil
	}

	e.producer = &domain.ProducerRecord{
		ConnectionID: id,
		ProducerID:   producerID,
		DisplayName:  displayName,
		ConnectedAt:  at.UTC(),
	}
	r.order = append(r.order, id)

	record := *e.producer
	return &record, nil
}

// Remove deletes all state for the connection. The removed producer record is
// returned when the connection had joined as a producer. Unknown ids are a no-op.
func (r *Registry) Remove(id domain.ConnectionID) (*domain.ProducerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[id]
	if !exists {
		return nil, false
	}
	delete(r.entries, id)

	if e.producer == nil {
		return nil, false
	}
	r.compactOrder()
	record := *e.producer
	return &record, true
}

// compactOrder drops ids that are no longer producers. Must be called with mu held.
func (r *Registry) compactOrder() {
	kept := r.order[:0]
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok && e.producer != nil {
			kept = append(kept, id)
		}
	}
	clear(r.order[len(kept):])
	r.order = kept
}

// Role reports the current role of a tracked connection.
func (r *Registry) Role(id domain.ConnectionID) (domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[id]
	if !exists {
		return domain.RoleUnclassified, false
	}
	return e.role, true
}

// Producer returns the record of a producer connection.
func (r *Registry) Producer(id domain.ConnectionID) (domain.ProducerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[id]
	if !exists || e.producer == nil {
		return domain.ProducerRecord{}, false
	}
	return *e.producer, true
}

// SnapshotProducers returns all live producer records in registration order.
func (r *Registry) SnapshotProducers() []domain.ProducerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]domain.ProducerRecord, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok && e.producer != nil {
			records = append(records, *e.producer)
		}
	}
	return records
}

// ObserverIDs returns the observer membership at call time.
func (r *Registry) ObserverIDs() []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ConnectionID, 0)
	for id, e := range r.entries {
		if e.role == domain.RoleObserver {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) Counts() domain.Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var c domain.Counts
	for _, e := range r.entries {
		switch e.role {
		case domain.RoleObserver:
			c.Observers++
		case domain.RoleProducer:
			c.Producers++
		default:
			c.Unclassified++
		}
	}
	return c
}
