package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/peakform/peakform/internal/access"
	"github.com/peakform/peakform/internal/audit"
	"github.com/peakform/peakform/internal/middleware"
	"github.com/peakform/peakform/internal/program"
)

// AccessHandlers holds dependencies for access status and coach-driven grant
// management.
type AccessHandlers struct {
	accessRepo  access.Repository
	programRepo program.Repository
	auditRepo   audit.Repository
}

// NewAccessHandlers creates a new AccessHandlers instance.
func NewAccessHandlers(accessRepo access.Repository, programRepo program.Repository, auditRepo audit.Repository) *AccessHandlers {
	return &AccessHandlers{
		accessRepo:  accessRepo,
		programRepo: programRepo,
		auditRepo:   auditRepo,
	}
}

// StatusResponse is the confirmation flow's read surface.
type StatusResponse struct {
	HasAccess bool   `json:"has_access"`
	ProgramID string `json:"program_id"`
	SessionID string `json:"session_id,omitempty"`
}

// Status handles GET /access/status?program_id=...&session_id=...
// It reads the grant store live on every call; the whole point of this
// endpoint is observing the asynchronous webhook's effect.
func (h *AccessHandlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	programID := r.URL.Query().Get("program_id")
	if programID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "program_id is required")
		return
	}

	// session_id is echoed back but access derives from the caller identity
	// and program alone; the webhook does not need the session to grant.
	sessionID := r.URL.Query().Get("session_id")

	hasAccess, err := h.accessRepo.HasAccess(ctx, userID, programID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check access", "user_id", userID, "program_id", programID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to check access")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, StatusResponse{
		HasAccess: hasAccess,
		ProgramID: programID,
		SessionID: sessionID,
	})
}

// GrantRequest is the body for a coach-driven grant.
type GrantRequest struct {
	UserID    string     `json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UpdateExpiryRequest is the body for an expiry update. A null expires_at
// clears the expiry (unlimited access).
type UpdateExpiryRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

// GrantResponse mirrors an access grant in API responses.
type GrantResponse struct {
	UserID            string     `json:"user_id"`
	ProgramID         string     `json:"program_id"`
	AccessType        string     `json:"access_type"`
	Source            *string    `json:"source,omitempty"`
	ExternalReference *string    `json:"external_reference,omitempty"`
	GrantedAt         time.Time  `json:"granted_at"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func grantResponse(g *access.Grant) GrantResponse {
	return GrantResponse{
		UserID:            g.UserID,
		ProgramID:         g.ProgramID,
		AccessType:        g.AccessType,
		Source:            g.Source,
		ExternalReference: g.ExternalReference,
		GrantedAt:         g.GrantedAt,
		ExpiresAt:         g.ExpiresAt,
		UpdatedAt:         g.UpdatedAt,
	}
}

// ownedProgram loads the program and verifies the caller coaches it.
// Writes the error response itself and returns false when the check fails.
func (h *AccessHandlers) ownedProgram(w http.ResponseWriter, r *http.Request, programID string) bool {
	ctx := r.Context()

	prog, err := h.programRepo.GetProgram(ctx, programID)
	if err != nil {
		if errors.Is(err, program.ErrNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "program not found")
		} else {
			slog.ErrorContext(ctx, "failed to load program", "program_id", programID, "error", err)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load program")
		}
		return false
	}
	if prog.CoachID != middleware.GetUserID(ctx) {
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "only the program's coach can manage grants")
		return false
	}
	return true
}

// Grant handles POST /programs/{id}/grants: a coach assigns access directly.
// The same (user_id, program_id) uniqueness applies as for purchases, so a
// repeated assignment converges on one grant.
func (h *AccessHandlers) Grant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := r.PathValue("id")

	if !h.ownedProgram(w, r, programID) {
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "user_id is required")
		return
	}

	grant, err := h.accessRepo.Upsert(ctx, access.UpsertParams{
		UserID:     req.UserID,
		ProgramID:  programID,
		AccessType: access.TypeAssigned,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to assign access", "user_id", req.UserID, "program_id", programID, "error", err)
		h.logMutation(r, req.UserID, programID, audit.ActionGrantAccess, audit.OutcomeFailure)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to assign access")
		return
	}

	h.logMutation(r, req.UserID, programID, audit.ActionGrantAccess, audit.OutcomeSuccess)
	WriteJSON(w, ctx, http.StatusCreated, grantResponse(grant))
}

// ListGrants handles GET /programs/{id}/grants.
func (h *AccessHandlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := r.PathValue("id")

	if !h.ownedProgram(w, r, programID) {
		return
	}

	grants, err := h.accessRepo.ListByProgram(ctx, programID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list grants", "program_id", programID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to list grants")
		return
	}

	responses := make([]GrantResponse, 0, len(grants))
	for _, g := range grants {
		responses = append(responses, grantResponse(g))
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]any{"grants": responses})
}

// UpdateExpiry handles PATCH /programs/{id}/grants/{user_id}.
func (h *AccessHandlers) UpdateExpiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := r.PathValue("id")
	userID := r.PathValue("user_id")

	if !h.ownedProgram(w, r, programID) {
		return
	}

	var req UpdateExpiryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	grant, err := h.accessRepo.UpdateExpiry(ctx, userID, programID, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, access.ErrGrantNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "grant not found")
			return
		}
		slog.ErrorContext(ctx, "failed to update grant expiry", "user_id", userID, "program_id", programID, "error", err)
		h.logMutation(r, userID, programID, audit.ActionUpdateExpiry, audit.OutcomeFailure)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to update expiry")
		return
	}

	h.logMutation(r, userID, programID, audit.ActionUpdateExpiry, audit.OutcomeSuccess)
	WriteJSON(w, ctx, http.StatusOK, grantResponse(grant))
}

// Revoke handles DELETE /programs/{id}/grants/{user_id}.
func (h *AccessHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := r.PathValue("id")
	userID := r.PathValue("user_id")

	if !h.ownedProgram(w, r, programID) {
		return
	}

	if err := h.accessRepo.Revoke(ctx, userID, programID); err != nil {
		if errors.Is(err, access.ErrGrantNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "grant not found")
			return
		}
		slog.ErrorContext(ctx, "failed to revoke access", "user_id", userID, "program_id", programID, "error", err)
		h.logMutation(r, userID, programID, audit.ActionRevokeAccess, audit.OutcomeFailure)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to revoke access")
		return
	}

	h.logMutation(r, userID, programID, audit.ActionRevokeAccess, audit.OutcomeSuccess)
	w.WriteHeader(http.StatusNoContent)
}

// logMutation records the coach action; audit failures are logged but do not
// fail the mutation, which has already been applied.
func (h *AccessHandlers) logMutation(r *http.Request, userID, programID, action, outcome string) {
	err := audit.LogMutation(r, h.auditRepo, audit.EntityAccessGrant, audit.GrantEntityID(userID, programID), action, outcome)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to write audit record",
			"action", action,
			"user_id", userID,
			"program_id", programID,
			"error", err)
	}
}
