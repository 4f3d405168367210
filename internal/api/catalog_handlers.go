package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/peakform/peakform/internal/audit"
	"github.com/peakform/peakform/internal/auth"
	"github.com/peakform/peakform/internal/middleware"
	"github.com/peakform/peakform/internal/program"
	"github.com/peakform/peakform/internal/validate"
)

// CatalogHandlers serves the coach-authored training catalog.
type CatalogHandlers struct {
	repo      program.Repository
	auditRepo audit.Repository
}

// NewCatalogHandlers creates a new CatalogHandlers instance.
func NewCatalogHandlers(repo program.Repository, auditRepo audit.Repository) *CatalogHandlers {
	return &CatalogHandlers{
		repo:      repo,
		auditRepo: auditRepo,
	}
}

// writeCatalogError maps repository errors onto API responses.
func writeCatalogError(w http.ResponseWriter, r *http.Request, err error, action string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, program.ErrNotFound):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "not found")
	case errors.Is(err, program.ErrNotOwner):
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "entity belongs to another coach")
	case errors.Is(err, program.ErrUnknownReference):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "order must be a permutation of the existing ids")
	default:
		slog.ErrorContext(ctx, "catalog operation failed", "action", action, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "operation failed")
	}
}

// validateExercise normalizes and checks user-supplied exercise fields.
func validateExercise(e *program.Exercise) error {
	name, err := validate.Name(e.Name)
	if err != nil {
		return fmt.Errorf("name: %w", err)
	}
	e.Name = name

	desc, err := validate.Description(e.Description)
	if err != nil {
		return fmt.Errorf("description: %w", err)
	}
	e.Description = desc

	if e.VideoURL != nil && *e.VideoURL != "" {
		u, err := validate.VideoURL(*e.VideoURL)
		if err != nil {
			return fmt.Errorf("video_url: %w", err)
		}
		e.VideoURL = &u
	}
	return nil
}

func validateProtocol(p *program.Protocol) error {
	name, err := validate.Name(p.Name)
	if err != nil {
		return fmt.Errorf("name: %w", err)
	}
	p.Name = name

	if p.Sets <= 0 {
		return fmt.Errorf("sets must be positive")
	}
	if p.RestSeconds < 0 {
		return fmt.Errorf("rest_seconds must not be negative")
	}
	return nil
}

func validateWorkout(wk *program.Workout) error {
	title, err := validate.Title(wk.Title)
	if err != nil {
		return fmt.Errorf("title: %w", err)
	}
	wk.Title = title

	notes, err := validate.Description(wk.Notes)
	if err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	wk.Notes = notes
	return nil
}

func validateProgram(p *program.Program) error {
	title, err := validate.Title(p.Title)
	if err != nil {
		return fmt.Errorf("title: %w", err)
	}
	p.Title = title

	desc, err := validate.Description(p.Description)
	if err != nil {
		return fmt.Errorf("description: %w", err)
	}
	p.Description = desc

	if p.PriceCents < 0 {
		return fmt.Errorf("price_cents must not be negative")
	}
	return nil
}

// --- exercises ---

func (h *CatalogHandlers) CreateExercise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var exercise program.Exercise
	if err := json.NewDecoder(r.Body).Decode(&exercise); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if err := validateExercise(&exercise); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	exercise.CoachID = middleware.GetUserID(ctx)

	created, err := h.repo.CreateExercise(ctx, &exercise)
	if err != nil {
		writeCatalogError(w, r, err, "create_exercise")
		return
	}
	WriteJSON(w, ctx, http.StatusCreated, created)
}

func (h *CatalogHandlers) ListExercises(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exercises, err := h.repo.ListExercises(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeCatalogError(w, r, err, "list_exercises")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]any{"exercises": exercises})
}

func (h *CatalogHandlers) GetExercise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exercise, err := h.repo.GetExercise(ctx, r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, err, "get_exercise")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, exercise)
}

func (h *CatalogHandlers) UpdateExercise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var exercise program.Exercise
	if err := json.NewDecoder(r.Body).Decode(&exercise); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	exercise.ID = r.PathValue("id")
	if err := validateExercise(&exercise); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	updated, err := h.repo.UpdateExercise(ctx, middleware.GetUserID(ctx), &exercise)
	if err != nil {
		writeCatalogError(w, r, err, "update_exercise")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, updated)
}

func (h *CatalogHandlers) DeleteExercise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.repo.DeleteExercise(ctx, middleware.GetUserID(ctx), r.PathValue("id")); err != nil {
		writeCatalogError(w, r, err, "delete_exercise")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- protocols ---

func (h *CatalogHandlers) CreateProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var protocol program.Protocol
	if err := json.NewDecoder(r.Body).Decode(&protocol); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if err := validateProtocol(&protocol); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	protocol.CoachID = middleware.GetUserID(ctx)

	created, err := h.repo.CreateProtocol(ctx, &protocol)
	if err != nil {
		writeCatalogError(w, r, err, "create_protocol")
		return
	}
	WriteJSON(w, ctx, http.StatusCreated, created)
}

func (h *CatalogHandlers) ListProtocols(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	protocols, err := h.repo.ListProtocols(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeCatalogError(w, r, err, "list_protocols")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]any{"protocols": protocols})
}

func (h *CatalogHandlers) GetProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	protocol, err := h.repo.GetProtocol(ctx, r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, err, "get_protocol")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, protocol)
}

func (h *CatalogHandlers) UpdateProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var protocol program.Protocol
	if err := json.NewDecoder(r.Body).Decode(&protocol); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	protocol.ID = r.PathValue("id")
	if err := validateProtocol(&protocol); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	updated, err := h.repo.UpdateProtocol(ctx, middleware.GetUserID(ctx), &protocol)
	if err != nil {
		writeCatalogError(w, r, err, "update_protocol")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, updated)
}

func (h *CatalogHandlers) DeleteProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.repo.DeleteProtocol(ctx, middleware.GetUserID(ctx), r.PathValue("id")); err != nil {
		writeCatalogError(w, r, err, "delete_protocol")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- blocks ---

// validateVariants checks that every variant references existing catalog
// entries before the block is stored.
func (h *CatalogHandlers) validateVariants(r *http.Request, variants []program.Variant) error {
	ctx := r.Context()
	for _, v := range variants {
		if _, err := h.repo.GetExercise(ctx, v.ExerciseID); err != nil {
			return err
		}
		if _, err := h.repo.GetProtocol(ctx, v.ProtocolID); err != nil {
			return err
		}
	}
	return nil
}

func (h *CatalogHandlers) CreateBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var block program.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	name, err := validate.Name(block.Name)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, fmt.Sprintf("name: %v", err))
		return
	}
	block.Name = name
	if err := h.validateVariants(r, block.Variants); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "variant references an unknown exercise or protocol")
		return
	}
	block.CoachID = middleware.GetUserID(ctx)

	created, err := h.repo.CreateBlock(ctx, &block)
	if err != nil {
		writeCatalogError(w, r, err, "create_block")
		return
	}
	WriteJSON(w, ctx, http.StatusCreated, created)
}

func (h *CatalogHandlers) ListBlocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blocks, err := h.repo.ListBlocks(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeCatalogError(w, r, err, "list_blocks")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]any{"blocks": blocks})
}

func (h *CatalogHandlers) GetBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	block, err := h.repo.GetBlock(ctx, r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, err, "get_block")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, block)
}

func (h *CatalogHandlers) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var block program.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	block.ID = r.PathValue("id")
	name, err := validate.Name(block.Name)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, fmt.Sprintf("name: %v", err))
		return
	}
	block.Name = name
	if err := h.validateVariants(r, block.Variants); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "variant references an unknown exercise or protocol")
		return
	}

	updated, err := h.repo.UpdateBlock(ctx, middleware.GetUserID(ctx), &block)
	if err != nil {
		writeCatalogError(w, r, err, "update_block")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, updated)
}

func (h *CatalogHandlers) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.repo.DeleteBlock(ctx, middleware.GetUserID(ctx), r.PathValue("id")); err != nil {
		writeCatalogError(w, r, err, "delete_block")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- workouts ---

func (h *CatalogHandlers) CreateWorkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var workout program.Workout
	if err := json.NewDecoder(r.Body).Decode(&workout); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if err := validateWorkout(&workout); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	workout.CoachID = middleware.GetUserID(ctx)

	created, err := h.repo.CreateWorkout(ctx, &workout)
	if err != nil {
		writeCatalogError(w, r, err, "create_workout")
		return
	}
	WriteJSON(w, ctx, http.StatusCreated, created)
}

func (h *CatalogHandlers) ListWorkouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workouts, err := h.repo.ListWorkouts(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeCatalogError(w, r, err, "list_workouts")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]any{"workouts": workouts})
}

func (h *CatalogHandlers) GetWorkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workout, err := h.repo.GetWorkout(ctx, r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, err, "get_workout")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, workout)
}

func (h *CatalogHandlers) UpdateWorkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var workout program.Workout
	if err := json.NewDecoder(r.Body).Decode(&workout); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	workout.ID = r.PathValue("id")
	if err := validateWorkout(&workout); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	updated, err := h.repo.UpdateWorkout(ctx, middleware.GetUserID(ctx), &workout)
	if err != nil {
		writeCatalogError(w, r, err, "update_workout")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, updated)
}

func (h *CatalogHandlers) DeleteWorkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.repo.DeleteWorkout(ctx, middleware.GetUserID(ctx), r.PathValue("id")); err != nil {
		writeCatalogError(w, r, err, "delete_workout")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderRequest carries a replacement ordering.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

// ReorderWorkoutBlocks handles PUT /workouts/{id}/block-order.
func (h *CatalogHandlers) ReorderWorkoutBlocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	workout, err := h.repo.ReorderWorkoutBlocks(ctx, middleware.GetUserID(ctx), r.PathValue("id"), req.IDs)
	if err != nil {
		writeCatalogError(w, r, err, "reorder_workout_blocks")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, workout)
}

// --- programs ---

func (h *CatalogHandlers) CreateProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var prog program.Program
	if err := json.NewDecoder(r.Body).Decode(&prog); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if err := validateProgram(&prog); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	prog.CoachID = middleware.GetUserID(ctx)

	created, err := h.repo.CreateProgram(ctx, &prog)
	if err != nil {
		writeCatalogError(w, r, err, "create_program")
		return
	}
	WriteJSON(w, ctx, http.StatusCreated, created)
}

// ListPrograms handles GET /programs. Coaches see their own catalog;
// athletes see the published storefront.
func (h *CatalogHandlers) ListPrograms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		programs []*program.Program
		err      error
	)
	if middleware.GetUserRole(ctx) == auth.RoleCoach {
		programs, err = h.repo.ListPrograms(ctx, middleware.GetUserID(ctx))
	} else {
		programs, err = h.repo.ListPublishedPrograms(ctx)
	}
	if err != nil {
		writeCatalogError(w, r, err, "list_programs")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, map[string]any{"programs": programs})
}

// GetProgram handles GET /programs/{id}. Unpublished programs are visible
// only to their coach.
func (h *CatalogHandlers) GetProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	prog, err := h.repo.GetProgram(ctx, r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, err, "get_program")
		return
	}
	if !prog.Published && prog.CoachID != middleware.GetUserID(ctx) {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "not found")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, prog)
}

func (h *CatalogHandlers) UpdateProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var prog program.Program
	if err := json.NewDecoder(r.Body).Decode(&prog); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	prog.ID = r.PathValue("id")
	if err := validateProgram(&prog); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	updated, err := h.repo.UpdateProgram(ctx, middleware.GetUserID(ctx), &prog)
	if err != nil {
		writeCatalogError(w, r, err, "update_program")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, updated)
}

func (h *CatalogHandlers) DeleteProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.repo.DeleteProgram(ctx, middleware.GetUserID(ctx), r.PathValue("id")); err != nil {
		writeCatalogError(w, r, err, "delete_program")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishRequest toggles a program's storefront visibility.
type PublishRequest struct {
	Published bool `json:"published"`
}

// Publish handles POST /programs/{id}/publish.
func (h *CatalogHandlers) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := r.PathValue("id")

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	prog, err := h.repo.PublishProgram(ctx, middleware.GetUserID(ctx), programID, req.Published)
	if err != nil {
		writeCatalogError(w, r, err, "publish_program")
		return
	}

	action := audit.ActionPublish
	if !req.Published {
		action = audit.ActionUnpublish
	}
	if err := audit.LogMutation(r, h.auditRepo, audit.EntityProgram, programID, action, audit.OutcomeSuccess); err != nil {
		slog.ErrorContext(ctx, "failed to write audit record", "action", action, "program_id", programID, "error", err)
	}

	WriteJSON(w, ctx, http.StatusOK, prog)
}

// ReorderProgramWorkouts handles PUT /programs/{id}/workout-order.
func (h *CatalogHandlers) ReorderProgramWorkouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	prog, err := h.repo.ReorderProgramWorkouts(ctx, middleware.GetUserID(ctx), r.PathValue("id"), req.IDs)
	if err != nil {
		writeCatalogError(w, r, err, "reorder_program_workouts")
		return
	}
	WriteJSON(w, ctx, http.StatusOK, prog)
}
