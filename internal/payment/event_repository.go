package payment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEventAlreadyProcessed is returned when attempting to record a duplicate
// webhook event.
var ErrEventAlreadyProcessed = errors.New("payment event already processed")

// RecordParams holds the fields captured when a webhook event is logged.
type RecordParams struct {
	EventID           string
	Type              string
	UserID            *string
	ProgramID         *string
	AmountTotal       *int64
	Currency          *string
	ExternalReference *string
}

// EventRepository is the append-only payment event log.
type EventRepository interface {
	// RecordEvent appends an event. Returns ErrEventAlreadyProcessed if an
	// event with the same event_id was already recorded.
	RecordEvent(ctx context.Context, params RecordParams) (*Event, error)

	// HasProcessed checks whether an event_id has already been recorded.
	HasProcessed(ctx context.Context, eventID string) (bool, error)

	// ListByUser returns events attributed to a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Event, error)
}

// InMemoryEventRepository implements EventRepository with in-memory storage.
type InMemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*Event // event_id -> Event
}

// NewInMemoryEventRepository creates a new in-memory event repository.
func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{
		events: make(map[string]*Event),
	}
}

// RecordEvent appends an event, rejecting duplicates by event_id.
func (r *InMemoryEventRepository) RecordEvent(ctx context.Context, params RecordParams) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[params.EventID]; exists {
		return nil, ErrEventAlreadyProcessed
	}

	event := &Event{
		ID:                uuid.New().String(),
		EventID:           params.EventID,
		Type:              params.Type,
		UserID:            copyString(params.UserID),
		ProgramID:         copyString(params.ProgramID),
		AmountTotal:       copyInt64(params.AmountTotal),
		Currency:          copyString(params.Currency),
		ExternalReference: copyString(params.ExternalReference),
		CreatedAt:         time.Now(),
	}
	r.events[params.EventID] = event

	return copyEvent(event), nil
}

// HasProcessed checks whether an event_id has already been recorded.
func (r *InMemoryEventRepository) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.events[eventID]
	return exists, nil
}

// ListByUser returns events attributed to a user, newest first.
func (r *InMemoryEventRepository) ListByUser(ctx context.Context, userID string) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*Event
	for _, event := range r.events {
		if event.UserID != nil && *event.UserID == userID {
			events = append(events, copyEvent(event))
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	return events, nil
}

func copyEvent(event *Event) *Event {
	copied := *event
	copied.UserID = copyString(event.UserID)
	copied.ProgramID = copyString(event.ProgramID)
	copied.AmountTotal = copyInt64(event.AmountTotal)
	copied.Currency = copyString(event.Currency)
	copied.ExternalReference = copyString(event.ExternalReference)
	return &copied
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	copied := *s
	return &copied
}

func copyInt64(n *int64) *int64 {
	if n == nil {
		return nil
	}
	copied := *n
	return &copied
}
