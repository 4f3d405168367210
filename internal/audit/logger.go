package audit

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/peakform/peakform/internal/middleware"
)

var (
	// ErrNilRepository is returned when a nil repository is passed to logging functions.
	ErrNilRepository = errors.New("audit repository cannot be nil")
	// ErrInvalidEntityType is returned when an invalid entity type is provided.
	ErrInvalidEntityType = errors.New("invalid audit entity type")
	// ErrInvalidEntityID is returned when an invalid entity ID is provided.
	ErrInvalidEntityID = errors.New("entity ID cannot be empty")
	// ErrInvalidAction is returned when an invalid action is provided.
	ErrInvalidAction = errors.New("invalid audit action")
)

// ValidEntityTypes defines the allowed entity types for audit logging.
var ValidEntityTypes = map[string]bool{
	EntityAccessGrant: true,
	EntityProgram:     true,
}

// ValidActions defines the allowed actions for audit logging.
var ValidActions = map[string]bool{
	ActionGrantAccess:  true,
	ActionRevokeAccess: true,
	ActionUpdateExpiry: true,
	ActionPublish:      true,
	ActionUnpublish:    true,
}

// validateEntry validates the required fields of an entry against whitelists.
func validateEntry(entityType, entityID, action string) error {
	if entityType == "" || !ValidEntityTypes[entityType] {
		return ErrInvalidEntityType
	}
	if entityID == "" {
		return ErrInvalidEntityID
	}
	if action == "" || !ValidActions[action] {
		return ErrInvalidAction
	}
	return nil
}

// extractIPAddress extracts the client IP address from an HTTP request.
// It checks X-Forwarded-For, X-Real-IP, and RemoteAddr in that order, with
// ports stripped.
func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		var firstIP string
		if idx := strings.Index(xff, ","); idx != -1 {
			firstIP = strings.TrimSpace(xff[:idx])
		} else {
			firstIP = strings.TrimSpace(xff)
		}
		if firstIP != "" {
			host, _, err := net.SplitHostPort(firstIP)
			if err != nil {
				return firstIP
			}
			return host
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		xri = strings.TrimSpace(xri)
		host, _, err := net.SplitHostPort(xri)
		if err != nil {
			return xri
		}
		return host
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LogMutation records a coach-driven mutation with HTTP request metadata.
// The actor and request id come from the request context; IP and user agent
// from the request itself.
//
// Fail-closed: if the append fails the error is returned so the caller can
// surface it instead of silently losing the trail.
func LogMutation(r *http.Request, repo Repository, entityType, entityID, action, outcome string) error {
	if repo == nil {
		return ErrNilRepository
	}
	if err := validateEntry(entityType, entityID, action); err != nil {
		return err
	}

	entry := Entry{
		ActorID:    middleware.GetUserID(r.Context()),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Outcome:    outcome,
		RequestID:  middleware.GetRequestID(r.Context()),
		IPAddress:  extractIPAddress(r),
		UserAgent:  r.UserAgent(),
	}

	_, err := repo.Log(entry)
	return err
}

// GrantEntityID builds the audit entity id for a (user, program) grant.
func GrantEntityID(userID, programID string) string {
	return userID + "/" + programID
}
