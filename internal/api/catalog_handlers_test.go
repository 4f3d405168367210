package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peakform/peakform/internal/audit"
	"github.com/peakform/peakform/internal/auth"
	"github.com/peakform/peakform/internal/middleware"
	"github.com/peakform/peakform/internal/program"
)

type catalogTestEnv struct {
	handlers  *CatalogHandlers
	repo      *program.InMemoryRepository
	auditRepo *audit.InMemoryRepository
}

func newCatalogTestEnv() *catalogTestEnv {
	repo := program.NewInMemoryRepository()
	auditRepo := audit.NewInMemoryRepository()
	return &catalogTestEnv{
		handlers:  NewCatalogHandlers(repo, auditRepo),
		repo:      repo,
		auditRepo: auditRepo,
	}
}

// coachRequest builds a request authenticated as a coach.
func coachRequest(t *testing.T, method, target, coachID string, payload any) *http.Request {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
	}
	req := authedRequest(method, target, coachID, body)
	return req.WithContext(middleware.SetUserRole(req.Context(), auth.RoleCoach))
}

func TestCreateExercise(t *testing.T) {
	env := newCatalogTestEnv()

	req := coachRequest(t, http.MethodPost, "/exercises", testCoachID, program.Exercise{
		Name:        "Back Squat",
		Description: "High bar, full depth",
	})
	w := httptest.NewRecorder()
	env.handlers.CreateExercise(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created program.Exercise
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if created.CoachID != testCoachID {
		t.Errorf("expected coach_id %s, got %s", testCoachID, created.CoachID)
	}
}

func TestCreateExercise_RequiresName(t *testing.T) {
	env := newCatalogTestEnv()

	req := coachRequest(t, http.MethodPost, "/exercises", testCoachID, program.Exercise{})
	w := httptest.NewRecorder()
	env.handlers.CreateExercise(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestUpdateExercise_ForeignCoachForbidden(t *testing.T) {
	env := newCatalogTestEnv()
	ctx := context.Background()

	created, err := env.repo.CreateExercise(ctx, &program.Exercise{CoachID: testCoachID, Name: "Back Squat"})
	if err != nil {
		t.Fatalf("CreateExercise failed: %v", err)
	}

	req := coachRequest(t, http.MethodPut, "/exercises/"+created.ID, "coach-2", program.Exercise{Name: "Front Squat"})
	req.SetPathValue("id", created.ID)
	w := httptest.NewRecorder()
	env.handlers.UpdateExercise(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
}

func TestCreateBlock_RejectsUnknownReferences(t *testing.T) {
	env := newCatalogTestEnv()

	req := coachRequest(t, http.MethodPost, "/blocks", testCoachID, program.Block{
		Name: "Squat A",
		Variants: []program.Variant{
			{Position: 0, ExerciseID: "missing", ProtocolID: "missing"},
		},
	})
	w := httptest.NewRecorder()
	env.handlers.CreateBlock(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateBlock_WithValidVariants(t *testing.T) {
	env := newCatalogTestEnv()
	ctx := context.Background()

	exercise, err := env.repo.CreateExercise(ctx, &program.Exercise{CoachID: testCoachID, Name: "Back Squat"})
	if err != nil {
		t.Fatalf("CreateExercise failed: %v", err)
	}
	protocol, err := env.repo.CreateProtocol(ctx, &program.Protocol{CoachID: testCoachID, Name: "5x5", Sets: 5, Reps: "5", RestSeconds: 180})
	if err != nil {
		t.Fatalf("CreateProtocol failed: %v", err)
	}

	req := coachRequest(t, http.MethodPost, "/blocks", testCoachID, program.Block{
		Name: "Squat A",
		Variants: []program.Variant{
			{Position: 0, ExerciseID: exercise.ID, ProtocolID: protocol.ID},
		},
	})
	w := httptest.NewRecorder()
	env.handlers.CreateBlock(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created program.Block
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(created.Variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(created.Variants))
	}
}

func TestPublishProgram_AuditLogged(t *testing.T) {
	env := newCatalogTestEnv()
	ctx := context.Background()

	prog, err := env.repo.CreateProgram(ctx, &program.Program{CoachID: testCoachID, Title: "Strength Base", PriceCents: 4900})
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}

	req := coachRequest(t, http.MethodPost, "/programs/"+prog.ID+"/publish", testCoachID, PublishRequest{Published: true})
	req.SetPathValue("id", prog.ID)
	w := httptest.NewRecorder()
	env.handlers.Publish(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp program.Program
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Published {
		t.Error("expected program to be published")
	}

	records, err := env.auditRepo.QueryByEntity(audit.EntityProgram, prog.ID, 0)
	if err != nil {
		t.Fatalf("QueryByEntity failed: %v", err)
	}
	if len(records) != 1 || records[0].Action != audit.ActionPublish {
		t.Fatalf("expected one publish audit record, got %+v", records)
	}

	// Unpublish gets its own action.
	req = coachRequest(t, http.MethodPost, "/programs/"+prog.ID+"/publish", testCoachID, PublishRequest{Published: false})
	req.SetPathValue("id", prog.ID)
	w = httptest.NewRecorder()
	env.handlers.Publish(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	records, err = env.auditRepo.QueryByEntity(audit.EntityProgram, prog.ID, 0)
	if err != nil {
		t.Fatalf("QueryByEntity failed: %v", err)
	}
	if len(records) != 2 || records[0].Action != audit.ActionUnpublish {
		t.Fatalf("expected unpublish as the newest record, got %+v", records)
	}
}

func TestListPrograms_AthleteSeesOnlyPublished(t *testing.T) {
	env := newCatalogTestEnv()
	ctx := context.Background()

	published, err := env.repo.CreateProgram(ctx, &program.Program{CoachID: testCoachID, Title: "Published", PriceCents: 4900})
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}
	if _, err := env.repo.PublishProgram(ctx, testCoachID, published.ID, true); err != nil {
		t.Fatalf("PublishProgram failed: %v", err)
	}
	if _, err := env.repo.CreateProgram(ctx, &program.Program{CoachID: testCoachID, Title: "Draft", PriceCents: 2900}); err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}

	req := authedRequest(http.MethodGet, "/programs", testAthleteID, nil)
	req = req.WithContext(middleware.SetUserRole(req.Context(), auth.RoleAthlete))
	w := httptest.NewRecorder()
	env.handlers.ListPrograms(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Programs []*program.Program `json:"programs"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Programs) != 1 || resp.Programs[0].Title != "Published" {
		t.Fatalf("expected only the published program, got %+v", resp.Programs)
	}

	// The coach sees both.
	req = coachRequest(t, http.MethodGet, "/programs", testCoachID, nil)
	w = httptest.NewRecorder()
	env.handlers.ListPrograms(w, req)

	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Programs) != 2 {
		t.Errorf("expected coach to see 2 programs, got %d", len(resp.Programs))
	}
}

func TestGetProgram_UnpublishedHiddenFromAthletes(t *testing.T) {
	env := newCatalogTestEnv()
	ctx := context.Background()

	prog, err := env.repo.CreateProgram(ctx, &program.Program{CoachID: testCoachID, Title: "Draft", PriceCents: 2900})
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}

	req := authedRequest(http.MethodGet, "/programs/"+prog.ID, testAthleteID, nil)
	req.SetPathValue("id", prog.ID)
	w := httptest.NewRecorder()
	env.handlers.GetProgram(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for a foreign draft, got %d", w.Code)
	}

	// The owning coach still sees it.
	req = coachRequest(t, http.MethodGet, "/programs/"+prog.ID, testCoachID, nil)
	req.SetPathValue("id", prog.ID)
	w = httptest.NewRecorder()
	env.handlers.GetProgram(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 for the owner, got %d", w.Code)
	}
}

func TestReorderProgramWorkouts(t *testing.T) {
	env := newCatalogTestEnv()
	ctx := context.Background()

	w1, err := env.repo.CreateWorkout(ctx, &program.Workout{CoachID: testCoachID, Title: "Day 1"})
	if err != nil {
		t.Fatalf("CreateWorkout failed: %v", err)
	}
	w2, err := env.repo.CreateWorkout(ctx, &program.Workout{CoachID: testCoachID, Title: "Day 2"})
	if err != nil {
		t.Fatalf("CreateWorkout failed: %v", err)
	}
	prog, err := env.repo.CreateProgram(ctx, &program.Program{
		CoachID:    testCoachID,
		Title:      "Strength Base",
		WorkoutIDs: []string{w1.ID, w2.ID},
		PriceCents: 4900,
	})
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}

	req := coachRequest(t, http.MethodPut, "/programs/"+prog.ID+"/workout-order", testCoachID, ReorderRequest{IDs: []string{w2.ID, w1.ID}})
	req.SetPathValue("id", prog.ID)
	w := httptest.NewRecorder()
	env.handlers.ReorderProgramWorkouts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp program.Program
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.WorkoutIDs) != 2 || resp.WorkoutIDs[0] != w2.ID {
		t.Errorf("expected reordered workouts, got %v", resp.WorkoutIDs)
	}

	// Reordering with a stray id is rejected.
	req = coachRequest(t, http.MethodPut, "/programs/"+prog.ID+"/workout-order", testCoachID, ReorderRequest{IDs: []string{w2.ID, "stray"}})
	req.SetPathValue("id", prog.ID)
	w = httptest.NewRecorder()
	env.handlers.ReorderProgramWorkouts(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestDeleteWorkout_NotFound(t *testing.T) {
	env := newCatalogTestEnv()

	req := coachRequest(t, http.MethodDelete, "/workouts/nope", testCoachID, nil)
	req.SetPathValue("id", "nope")
	w := httptest.NewRecorder()
	env.handlers.DeleteWorkout(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}
