// Package access provides models and repositories for program access grants.
//
// A grant is the persisted right of one user to use one program. The
// (user_id, program_id) pair is unique: re-granting updates the existing
// record, it never creates a duplicate. This uniqueness is the safety net
// for webhook redelivery and for concurrent deliveries of the same event.
package access

import "time"

// Access type constants.
const (
	TypeAssigned  = "assigned"  // granted directly by a coach
	TypePurchased = "purchased" // granted by a confirmed payment
)

// SourceStripe is the provenance recorded on purchase-driven grants.
const SourceStripe = "stripe"

// Grant represents one user's right to use one program.
type Grant struct {
	UserID            string     `json:"user_id"`
	ProgramID         string     `json:"program_id"`
	AccessType        string     `json:"access_type"` // assigned or purchased
	Source            *string    `json:"source,omitempty"`
	ExternalReference *string    `json:"external_reference,omitempty"` // payment session id
	GrantedAt         time.Time  `json:"granted_at"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"` // nil means unlimited
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Expired reports whether the grant has lapsed at the given instant.
// A nil ExpiresAt never expires.
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}
