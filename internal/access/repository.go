package access

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrGrantNotFound is returned when an access grant is not found.
var ErrGrantNotFound = errors.New("access grant not found")

// UpsertParams holds the fields written by an atomic grant upsert.
type UpsertParams struct {
	UserID            string
	ProgramID         string
	AccessType        string
	Source            *string
	ExternalReference *string
	ExpiresAt         *time.Time
}

// Repository defines methods for access grant persistence.
//
// Upsert must be a single atomic conflict-resolving write on the
// (user_id, program_id) uniqueness constraint, never a read-then-write
// pair: two concurrent deliveries of the same payment event must converge
// on one row.
type Repository interface {
	// Upsert creates the grant or, on conflict, updates access type, source,
	// external reference and timestamps. Returns the resulting grant.
	Upsert(ctx context.Context, params UpsertParams) (*Grant, error)

	// HasAccess reports whether the user holds an unexpired grant for the
	// program. Reads live state; results are never cached.
	HasAccess(ctx context.Context, userID, programID string) (bool, error)

	// Get retrieves a grant. Returns ErrGrantNotFound if absent.
	Get(ctx context.Context, userID, programID string) (*Grant, error)

	// ListByProgram returns all grants for a program, newest first.
	ListByProgram(ctx context.Context, programID string) ([]*Grant, error)

	// ListByUser returns all grants held by a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Grant, error)

	// UpdateExpiry sets the grant's expiry (nil clears it to unlimited).
	// Returns ErrGrantNotFound if the grant does not exist.
	UpdateExpiry(ctx context.Context, userID, programID string, expiresAt *time.Time) (*Grant, error)

	// Revoke deletes the grant. Returns ErrGrantNotFound if absent.
	Revoke(ctx context.Context, userID, programID string) error
}

// grantKey builds the composite map key for a grant.
func grantKey(userID, programID string) string {
	return userID + "\x00" + programID
}

// InMemoryRepository implements Repository with in-memory storage.
// The single mutex makes the check-and-write inside Upsert atomic, mirroring
// the conflict-resolving insert of the Postgres implementation.
type InMemoryRepository struct {
	mu     sync.RWMutex
	grants map[string]*Grant
}

// NewInMemoryRepository creates a new in-memory access grant repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		grants: make(map[string]*Grant),
	}
}

// Upsert creates or updates the grant for (user_id, program_id).
func (r *InMemoryRepository) Upsert(ctx context.Context, params UpsertParams) (*Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	key := grantKey(params.UserID, params.ProgramID)

	grant, exists := r.grants[key]
	if !exists {
		grant = &Grant{
			UserID:    params.UserID,
			ProgramID: params.ProgramID,
			GrantedAt: now,
		}
		r.grants[key] = grant
	}

	grant.AccessType = params.AccessType
	grant.Source = copyString(params.Source)
	grant.ExternalReference = copyString(params.ExternalReference)
	grant.ExpiresAt = copyTime(params.ExpiresAt)
	grant.UpdatedAt = now

	copied := r.copyGrant(grant)
	return copied, nil
}

// HasAccess reports whether the user holds an unexpired grant for the program.
func (r *InMemoryRepository) HasAccess(ctx context.Context, userID, programID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grant, ok := r.grants[grantKey(userID, programID)]
	if !ok {
		return false, nil
	}
	return !grant.Expired(time.Now()), nil
}

// Get retrieves a grant by its composite identity.
func (r *InMemoryRepository) Get(ctx context.Context, userID, programID string) (*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grant, ok := r.grants[grantKey(userID, programID)]
	if !ok {
		return nil, ErrGrantNotFound
	}
	return r.copyGrant(grant), nil
}

// ListByProgram returns all grants for a program, newest first.
func (r *InMemoryRepository) ListByProgram(ctx context.Context, programID string) ([]*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Grant
	for _, grant := range r.grants {
		if grant.ProgramID == programID {
			results = append(results, r.copyGrant(grant))
		}
	}
	sortGrantsNewestFirst(results)
	return results, nil
}

// ListByUser returns all grants held by a user, newest first.
func (r *InMemoryRepository) ListByUser(ctx context.Context, userID string) ([]*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Grant
	for _, grant := range r.grants {
		if grant.UserID == userID {
			results = append(results, r.copyGrant(grant))
		}
	}
	sortGrantsNewestFirst(results)
	return results, nil
}

// UpdateExpiry sets the grant's expiry timestamp.
func (r *InMemoryRepository) UpdateExpiry(ctx context.Context, userID, programID string, expiresAt *time.Time) (*Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	grant, ok := r.grants[grantKey(userID, programID)]
	if !ok {
		return nil, ErrGrantNotFound
	}

	grant.ExpiresAt = copyTime(expiresAt)
	grant.UpdatedAt = time.Now()
	return r.copyGrant(grant), nil
}

// Revoke deletes the grant.
func (r *InMemoryRepository) Revoke(ctx context.Context, userID, programID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := grantKey(userID, programID)
	if _, ok := r.grants[key]; !ok {
		return ErrGrantNotFound
	}
	delete(r.grants, key)
	return nil
}

// copyGrant creates a deep copy to prevent external mutation.
func (r *InMemoryRepository) copyGrant(grant *Grant) *Grant {
	copied := *grant
	copied.Source = copyString(grant.Source)
	copied.ExternalReference = copyString(grant.ExternalReference)
	copied.ExpiresAt = copyTime(grant.ExpiresAt)
	return &copied
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func sortGrantsNewestFirst(grants []*Grant) {
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].GrantedAt.After(grants[j].GrantedAt)
	})
}
