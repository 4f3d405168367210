package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/peakform/peakform/internal/access"
	"github.com/peakform/peakform/internal/audit"
	"github.com/peakform/peakform/internal/middleware"
	"github.com/peakform/peakform/internal/program"
)

type accessTestEnv struct {
	handlers    *AccessHandlers
	accessRepo  *access.InMemoryRepository
	programRepo *program.InMemoryRepository
	auditRepo   *audit.InMemoryRepository
	programID   string
}

const (
	testCoachID   = "coach-1"
	testAthleteID = "athlete-1"
)

func newAccessTestEnv(t *testing.T) *accessTestEnv {
	t.Helper()
	accessRepo := access.NewInMemoryRepository()
	programRepo := program.NewInMemoryRepository()
	auditRepo := audit.NewInMemoryRepository()

	prog, err := programRepo.CreateProgram(context.Background(), &program.Program{
		CoachID:    testCoachID,
		Title:      "12 Week Strength Base",
		PriceCents: 4900,
	})
	if err != nil {
		t.Fatalf("failed to seed program: %v", err)
	}

	return &accessTestEnv{
		handlers:    NewAccessHandlers(accessRepo, programRepo, auditRepo),
		accessRepo:  accessRepo,
		programRepo: programRepo,
		auditRepo:   auditRepo,
		programID:   prog.ID,
	}
}

// authedRequest builds a request with an authenticated user in context.
func authedRequest(method, target, userID string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.SetUserID(req.Context(), userID))
}

func TestStatus_RequiresAuthentication(t *testing.T) {
	env := newAccessTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/access/status?program_id=p1", nil)
	w := httptest.NewRecorder()
	env.handlers.Status(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestStatus_RequiresProgramID(t *testing.T) {
	env := newAccessTestEnv(t)

	req := authedRequest(http.MethodGet, "/access/status", testAthleteID, nil)
	w := httptest.NewRecorder()
	env.handlers.Status(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestStatus_ReflectsGrantStore(t *testing.T) {
	env := newAccessTestEnv(t)
	ctx := context.Background()

	target := "/access/status?program_id=" + env.programID + "&session_id=cs_42"

	// Before the webhook lands.
	w := httptest.NewRecorder()
	env.handlers.Status(w, authedRequest(http.MethodGet, target, testAthleteID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.HasAccess {
		t.Error("expected has_access false before any grant")
	}
	if resp.SessionID != "cs_42" {
		t.Errorf("expected session_id cs_42 echoed back, got %q", resp.SessionID)
	}

	// Simulate the webhook's grant.
	if _, err := env.accessRepo.Upsert(ctx, access.UpsertParams{
		UserID:     testAthleteID,
		ProgramID:  env.programID,
		AccessType: access.TypePurchased,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	w = httptest.NewRecorder()
	env.handlers.Status(w, authedRequest(http.MethodGet, target, testAthleteID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.HasAccess {
		t.Error("expected has_access true after grant")
	}
}

func grantBody(t *testing.T, userID string, expiresAt *time.Time) []byte {
	t.Helper()
	body, err := json.Marshal(GrantRequest{UserID: userID, ExpiresAt: expiresAt})
	if err != nil {
		t.Fatalf("failed to marshal grant request: %v", err)
	}
	return body
}

func TestGrant_CoachAssignsAccess(t *testing.T) {
	env := newAccessTestEnv(t)
	ctx := context.Background()

	req := authedRequest(http.MethodPost, "/programs/"+env.programID+"/grants", testCoachID, grantBody(t, testAthleteID, nil))
	req.SetPathValue("id", env.programID)

	w := httptest.NewRecorder()
	env.handlers.Grant(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp GrantResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.AccessType != access.TypeAssigned {
		t.Errorf("expected access type %s, got %s", access.TypeAssigned, resp.AccessType)
	}

	hasAccess, err := env.accessRepo.HasAccess(ctx, testAthleteID, env.programID)
	if err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if !hasAccess {
		t.Error("expected athlete to have access")
	}

	records, err := env.auditRepo.QueryByEntity(audit.EntityAccessGrant, audit.GrantEntityID(testAthleteID, env.programID), 0)
	if err != nil {
		t.Fatalf("QueryByEntity failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].Action != audit.ActionGrantAccess {
		t.Errorf("expected action %s, got %s", audit.ActionGrantAccess, records[0].Action)
	}
	if records[0].ActorID != testCoachID {
		t.Errorf("expected actor %s, got %s", testCoachID, records[0].ActorID)
	}
}

func TestGrant_RejectsForeignCoach(t *testing.T) {
	env := newAccessTestEnv(t)

	req := authedRequest(http.MethodPost, "/programs/"+env.programID+"/grants", "coach-2", grantBody(t, testAthleteID, nil))
	req.SetPathValue("id", env.programID)

	w := httptest.NewRecorder()
	env.handlers.Grant(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
}

func TestGrant_UnknownProgram(t *testing.T) {
	env := newAccessTestEnv(t)

	req := authedRequest(http.MethodPost, "/programs/nope/grants", testCoachID, grantBody(t, testAthleteID, nil))
	req.SetPathValue("id", "nope")

	w := httptest.NewRecorder()
	env.handlers.Grant(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestGrant_RequiresUserID(t *testing.T) {
	env := newAccessTestEnv(t)

	req := authedRequest(http.MethodPost, "/programs/"+env.programID+"/grants", testCoachID, grantBody(t, "", nil))
	req.SetPathValue("id", env.programID)

	w := httptest.NewRecorder()
	env.handlers.Grant(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestListGrants(t *testing.T) {
	env := newAccessTestEnv(t)
	ctx := context.Background()

	for _, userID := range []string{"athlete-1", "athlete-2"} {
		if _, err := env.accessRepo.Upsert(ctx, access.UpsertParams{
			UserID:     userID,
			ProgramID:  env.programID,
			AccessType: access.TypePurchased,
		}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	req := authedRequest(http.MethodGet, "/programs/"+env.programID+"/grants", testCoachID, nil)
	req.SetPathValue("id", env.programID)

	w := httptest.NewRecorder()
	env.handlers.ListGrants(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Grants []GrantResponse `json:"grants"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Grants) != 2 {
		t.Errorf("expected 2 grants, got %d", len(resp.Grants))
	}
}

func TestUpdateExpiry(t *testing.T) {
	env := newAccessTestEnv(t)
	ctx := context.Background()

	if _, err := env.accessRepo.Upsert(ctx, access.UpsertParams{
		UserID:     testAthleteID,
		ProgramID:  env.programID,
		AccessType: access.TypeAssigned,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	expiresAt := time.Now().Add(30 * 24 * time.Hour).UTC()
	body, _ := json.Marshal(UpdateExpiryRequest{ExpiresAt: &expiresAt})

	req := authedRequest(http.MethodPatch, "/programs/"+env.programID+"/grants/"+testAthleteID, testCoachID, body)
	req.SetPathValue("id", env.programID)
	req.SetPathValue("user_id", testAthleteID)

	w := httptest.NewRecorder()
	env.handlers.UpdateExpiry(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp GrantResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ExpiresAt == nil || !resp.ExpiresAt.Equal(expiresAt) {
		t.Errorf("expected expires_at %v, got %v", expiresAt, resp.ExpiresAt)
	}
}

func TestUpdateExpiry_GrantNotFound(t *testing.T) {
	env := newAccessTestEnv(t)

	body, _ := json.Marshal(UpdateExpiryRequest{})
	req := authedRequest(http.MethodPatch, "/programs/"+env.programID+"/grants/nobody", testCoachID, body)
	req.SetPathValue("id", env.programID)
	req.SetPathValue("user_id", "nobody")

	w := httptest.NewRecorder()
	env.handlers.UpdateExpiry(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestRevoke(t *testing.T) {
	env := newAccessTestEnv(t)
	ctx := context.Background()

	if _, err := env.accessRepo.Upsert(ctx, access.UpsertParams{
		UserID:     testAthleteID,
		ProgramID:  env.programID,
		AccessType: access.TypeAssigned,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	req := authedRequest(http.MethodDelete, "/programs/"+env.programID+"/grants/"+testAthleteID, testCoachID, nil)
	req.SetPathValue("id", env.programID)
	req.SetPathValue("user_id", testAthleteID)

	w := httptest.NewRecorder()
	env.handlers.Revoke(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", w.Code, w.Body.String())
	}

	hasAccess, err := env.accessRepo.HasAccess(ctx, testAthleteID, env.programID)
	if err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if hasAccess {
		t.Error("expected access to be revoked")
	}

	records, err := env.auditRepo.QueryByEntity(audit.EntityAccessGrant, audit.GrantEntityID(testAthleteID, env.programID), 0)
	if err != nil {
		t.Fatalf("QueryByEntity failed: %v", err)
	}
	if len(records) != 1 || records[0].Action != audit.ActionRevokeAccess {
		t.Fatalf("expected one revoke audit record, got %+v", records)
	}

	// Revoking again reports the missing grant.
	w = httptest.NewRecorder()
	req = authedRequest(http.MethodDelete, "/programs/"+env.programID+"/grants/"+testAthleteID, testCoachID, nil)
	req.SetPathValue("id", env.programID)
	req.SetPathValue("user_id", testAthleteID)
	env.handlers.Revoke(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 on double revoke, got %d", w.Code)
	}
}
