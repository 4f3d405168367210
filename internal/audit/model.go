// Package audit provides append-only logging of coach-driven access
// mutations for after-the-fact reconciliation.
package audit

import (
	"time"
)

// Entity types that can appear in the audit log.
const (
	EntityAccessGrant = "access_grant"
	EntityProgram     = "program"
)

// Actions recorded against those entities.
const (
	ActionGrantAccess  = "grant_access"
	ActionRevokeAccess = "revoke_access"
	ActionUpdateExpiry = "update_expiry"
	ActionPublish      = "publish_program"
	ActionUnpublish    = "unpublish_program"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Record is a single audit event.
type Record struct {
	ID         string
	ActorID    string // coach performing the mutation
	EntityType string
	EntityID   string // e.g. "user_id/program_id" for grants
	Action     string
	Outcome    string
	CreatedAt  time.Time

	// Optional request metadata
	RequestID string
	IPAddress string
	UserAgent string
}

// Entry is the input for creating an audit record.
type Entry struct {
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string

	RequestID string
	IPAddress string
	UserAgent string
}
