package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit log operations.
type Repository interface {
	// Log appends an audit record. Returns the created record.
	Log(entry Entry) (*Record, error)

	// QueryByEntity retrieves records for an entity, newest first.
	// Limit caps the number of results (0 = no limit).
	QueryByEntity(entityType, entityID string, limit int) ([]*Record, error)

	// QueryByActor retrieves records produced by an actor, newest first.
	// Limit caps the number of results (0 = no limit).
	QueryByActor(actorID string, limit int) ([]*Record, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	// Maintain insertion order for queries
	order []string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
		order:   make([]string, 0),
	}
}

// Log appends an audit record.
func (r *InMemoryRepository) Log(entry Entry) (*Record, error) {
	record := &Record{
		ID:         uuid.New().String(),
		ActorID:    entry.ActorID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Outcome:    entry.Outcome,
		CreatedAt:  time.Now().UTC(),
		RequestID:  entry.RequestID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}

	r.mu.Lock()
	r.records[record.ID] = record
	r.order = append(r.order, record.ID)
	r.mu.Unlock()

	copied := *record
	return &copied, nil
}

// QueryByEntity retrieves records for an entity, newest first.
func (r *InMemoryRepository) QueryByEntity(entityType, entityID string, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		record := r.records[r.order[i]]
		if record.EntityType == entityType && record.EntityID == entityID {
			copied := *record
			results = append(results, &copied)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}

	return results, nil
}

// QueryByActor retrieves records produced by an actor, newest first.
func (r *InMemoryRepository) QueryByActor(actorID string, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		record := r.records[r.order[i]]
		if record.ActorID == actorID {
			copied := *record
			results = append(results, &copied)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}

	return results, nil
}

// AnonymizeOlderThan scrubs IP addresses from records created before the
// cutoff. Returns the number of records anonymized.
func (r *InMemoryRepository) AnonymizeOlderThan(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, record := range r.records {
		if record.IPAddress == "" || !record.CreatedAt.Before(cutoff) {
			continue
		}
		anonymized := AnonymizeIP(record.IPAddress)
		if anonymized != record.IPAddress {
			record.IPAddress = anonymized
			count++
		}
	}
	return count
}
