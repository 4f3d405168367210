package program

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a catalog entity does not exist.
	ErrNotFound = errors.New("catalog entity not found")

	// ErrNotOwner is returned when a coach operates on another coach's entity.
	ErrNotOwner = errors.New("entity belongs to another coach")

	// ErrUnknownReference is returned when an ordered list references an id
	// that does not belong to the entity.
	ErrUnknownReference = errors.New("unknown id in ordered list")
)

// Repository is the training catalog store. Write operations take the acting
// coach's id and enforce ownership.
type Repository interface {
	CreateExercise(ctx context.Context, exercise *Exercise) (*Exercise, error)
	UpdateExercise(ctx context.Context, coachID string, exercise *Exercise) (*Exercise, error)
	GetExercise(ctx context.Context, id string) (*Exercise, error)
	ListExercises(ctx context.Context, coachID string) ([]*Exercise, error)
	DeleteExercise(ctx context.Context, coachID, id string) error

	CreateProtocol(ctx context.Context, protocol *Protocol) (*Protocol, error)
	UpdateProtocol(ctx context.Context, coachID string, protocol *Protocol) (*Protocol, error)
	GetProtocol(ctx context.Context, id string) (*Protocol, error)
	ListProtocols(ctx context.Context, coachID string) ([]*Protocol, error)
	DeleteProtocol(ctx context.Context, coachID, id string) error

	CreateBlock(ctx context.Context, block *Block) (*Block, error)
	UpdateBlock(ctx context.Context, coachID string, block *Block) (*Block, error)
	GetBlock(ctx context.Context, id string) (*Block, error)
	ListBlocks(ctx context.Context, coachID string) ([]*Block, error)
	DeleteBlock(ctx context.Context, coachID, id string) error

	CreateWorkout(ctx context.Context, workout *Workout) (*Workout, error)
	UpdateWorkout(ctx context.Context, coachID string, workout *Workout) (*Workout, error)
	GetWorkout(ctx context.Context, id string) (*Workout, error)
	ListWorkouts(ctx context.Context, coachID string) ([]*Workout, error)
	DeleteWorkout(ctx context.Context, coachID, id string) error
	// ReorderWorkoutBlocks replaces the workout's block ordering. The new
	// order must be a permutation of the existing block ids.
	ReorderWorkoutBlocks(ctx context.Context, coachID, workoutID string, blockIDs []string) (*Workout, error)

	CreateProgram(ctx context.Context, prog *Program) (*Program, error)
	UpdateProgram(ctx context.Context, coachID string, prog *Program) (*Program, error)
	GetProgram(ctx context.Context, id string) (*Program, error)
	ListPrograms(ctx context.Context, coachID string) ([]*Program, error)
	// ListPublishedPrograms is the athlete-facing catalog view.
	ListPublishedPrograms(ctx context.Context) ([]*Program, error)
	DeleteProgram(ctx context.Context, coachID, id string) error
	PublishProgram(ctx context.Context, coachID, id string, published bool) (*Program, error)
	// ReorderProgramWorkouts replaces the program's workout ordering. The new
	// order must be a permutation of the existing workout ids.
	ReorderProgramWorkouts(ctx context.Context, coachID, programID string, workoutIDs []string) (*Program, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	exercises map[string]*Exercise
	protocols map[string]*Protocol
	blocks    map[string]*Block
	workouts  map[string]*Workout
	programs  map[string]*Program
}

// NewInMemoryRepository creates a new in-memory catalog repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		exercises: make(map[string]*Exercise),
		protocols: make(map[string]*Protocol),
		blocks:    make(map[string]*Block),
		workouts:  make(map[string]*Workout),
		programs:  make(map[string]*Program),
	}
}

// --- exercises ---

func (r *InMemoryRepository) CreateExercise(ctx context.Context, exercise *Exercise) (*Exercise, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	copied := copyExercise(exercise)
	copied.ID = uuid.New().String()
	copied.CreatedAt = now
	copied.UpdatedAt = now
	r.exercises[copied.ID] = copied

	return copyExercise(copied), nil
}

func (r *InMemoryRepository) UpdateExercise(ctx context.Context, coachID string, exercise *Exercise) (*Exercise, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.exercises[exercise.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if existing.CoachID != coachID {
		return nil, ErrNotOwner
	}

	copied := copyExercise(exercise)
	copied.CoachID = existing.CoachID
	copied.CreatedAt = existing.CreatedAt
	copied.UpdatedAt = time.Now()
	r.exercises[copied.ID] = copied

	return copyExercise(copied), nil
}

func (r *InMemoryRepository) GetExercise(ctx context.Context, id string) (*Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exercise, ok := r.exercises[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyExercise(exercise), nil
}

func (r *InMemoryRepository) ListExercises(ctx context.Context, coachID string) ([]*Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Exercise
	for _, exercise := range r.exercises {
		if exercise.CoachID == coachID {
			out = append(out, copyExercise(exercise))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) DeleteExercise(ctx context.Context, coachID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.exercises[id]
	if !ok {
		return ErrNotFound
	}
	if existing.CoachID != coachID {
		return ErrNotOwner
	}
	delete(r.exercises, id)
	return nil
}

// --- protocols ---

func (r *InMemoryRepository) CreateProtocol(ctx context.Context, protocol *Protocol) (*Protocol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	copied := copyProtocol(protocol)
	copied.ID = uuid.New().String()
	copied.CreatedAt = now
	copied.UpdatedAt = now
	r.protocols[copied.ID] = copied

	return copyProtocol(copied), nil
}

func (r *InMemoryRepository) UpdateProtocol(ctx context.Context, coachID string, protocol *Protocol) (*Protocol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.protocols[protocol.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if existing.CoachID != coachID {
		return nil, ErrNotOwner
	}

	copied := copyProtocol(protocol)
	copied.CoachID = existing.CoachID
	copied.CreatedAt = existing.CreatedAt
	copied.UpdatedAt = time.Now()
	r.protocols[copied.ID] = copied

	return copyProtocol(copied), nil
}

func (r *InMemoryRepository) GetProtocol(ctx context.Context, id string) (*Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	protocol, ok := r.protocols[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProtocol(protocol), nil
}

func (r *InMemoryRepository) ListProtocols(ctx context.Context, coachID string) ([]*Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Protocol
	for _, protocol := range r.protocols {
		if protocol.CoachID == coachID {
			out = append(out, copyProtocol(protocol))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) DeleteProtocol(ctx context.Context, coachID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.protocols[id]
	if !ok {
		return ErrNotFound
	}
	if existing.CoachID != coachID {
		return ErrNotOwner
	}
	delete(r.protocols, id)
	return nil
}

// --- blocks ---

func (r *InMemoryRepository) CreateBlock(ctx context.Context, block *Block) (*Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	copied := copyBlock(block)
	copied.ID = uuid.New().String()
	copied.CreatedAt = now
	copied.UpdatedAt = now
	normalizeVariantPositions(copied.Variants)
	r.blocks[copied.ID] = copied

	return copyBlock(copied), nil
}

func (r *InMemoryRepository) UpdateBlock(ctx context.Context, coachID string, block *Block) (*Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.blocks[block.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if existing.CoachID != coachID {
		return nil, ErrNotOwner
	}

	copied := copyBlock(block)
	copied.CoachID = existing.CoachID
	copied.CreatedAt = existing.CreatedAt
	copied.UpdatedAt = time.Now()
	normalizeVariantPositions(copied.Variants)
	r.blocks[copied.ID] = copied

	return copyBlock(copied), nil
}

func (r *InMemoryRepository) GetBlock(ctx context.Context, id string) (*Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	block, ok := r.blocks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBlock(block), nil
}

func (r *InMemoryRepository) ListBlocks(ctx context.Context, coachID string) ([]*Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Block
	for _, block := range r.blocks {
		if block.CoachID == coachID {
			out = append(out, copyBlock(block))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) DeleteBlock(ctx context.Context, coachID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.blocks[id]
	if !ok {
		return ErrNotFound
	}
	if existing.CoachID != coachID {
		return ErrNotOwner
	}
	delete(r.blocks, id)
	return nil
}

// --- workouts ---

func (r *InMemoryRepository) CreateWorkout(ctx context.Context, workout *Workout) (*Workout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	copied := copyWorkout(workout)
	copied.ID = uuid.New().String()
	copied.CreatedAt = now
	copied.UpdatedAt = now
	r.workouts[copied.ID] = copied

	return copyWorkout(copied), nil
}

func (r *InMemoryRepository) UpdateWorkout(ctx context.Context, coachID string, workout *Workout) (*Workout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.workouts[workout.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if existing.CoachID != coachID {
		return nil, ErrNotOwner
	}

	copied := copyWorkout(workout)
	copied.CoachID = existing.CoachID
	copied.CreatedAt = existing.CreatedAt
	copied.UpdatedAt = time.Now()
	r.workouts[copied.ID] = copied

	return copyWorkout(copied), nil
}

func (r *InMemoryRepository) GetWorkout(ctx context.Context, id string) (*Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workout, ok := r.workouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyWorkout(workout), nil
}

func (r *InMemoryRepository) ListWorkouts(ctx context.Context, coachID string) ([]*Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Workout
	for _, workout := range r.workouts {
		if workout.CoachID == coachID {
			out = append(out, copyWorkout(workout))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) DeleteWorkout(ctx context.Context, coachID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.workouts[id]
	if !ok {
		return ErrNotFound
	}
	if existing.CoachID != coachID {
		return ErrNotOwner
	}
	delete(r.workouts, id)
	return nil
}

func (r *InMemoryRepository) ReorderWorkoutBlocks(ctx context.Context, coachID, workoutID string, blockIDs []string) (*Workout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.workouts[workoutID]
	if !ok {
		return nil, ErrNotFound
	}
	if existing.CoachID != coachID {
		return nil, ErrNotOwner
	}
	if !samePermutation(existing.BlockIDs, blockIDs) {
		return nil, ErrUnknownReference
	}

	existing.BlockIDs = append([]string(nil), blockIDs...)
	existing.UpdatedAt = time.Now()

	return copyWorkout(existing), nil
}

// --- programs ---

func (r *InMemoryRepository) CreateProgram(ctx context.Context, prog *Program) (*Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	copied := copyProgram(prog)
	copied.ID = uuid.New().String()
	if copied.Currency == "" {
		copied.Currency = "usd"
	}
	copied.Published = false
	copied.CreatedAt = now
	copied.UpdatedAt = now
	r.programs[copied.ID] = copied

	return copyProgram(copied), nil
}

func (r *InMemoryRepository) UpdateProgram(ctx context.Context, coachID string, prog *Program) (*Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.programs[prog.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if existing.CoachID != coachID {
		return nil, ErrNotOwner
	}

	copied := copyProgram(prog)
	copied.CoachID = existing.CoachID
	copied.Published = existing.Published
	copied.CreatedAt = existing.CreatedAt
	copied.UpdatedAt = time.Now()
	r.programs[copied.ID] = copied

	return copyProgram(copied), nil
}

func (r *InMemoryRepository) GetProgram(ctx context.Context, id string) (*Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prog, ok := r.programs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProgram(prog), nil
}

func (r *InMemoryRepository) ListPrograms(ctx context.Context, coachID string) ([]*Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Program
	for _, prog := range r.programs {
		if prog.CoachID == coachID {
			out = append(out, copyProgram(prog))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) ListPublishedPrograms(ctx context.Context) ([]*Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Program
	for _, prog := range r.programs {
		if prog.Published {
			out = append(out, copyProgram(prog))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) DeleteProgram(ctx context.Context, coachID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.programs[id]
	if !ok {
		return ErrNotFound
	}
	if existing.CoachID != coachID {
		return ErrNotOwner
	}
	delete(r.programs, id)
	return nil
}

func (r *InMemoryRepository) PublishProgram(ctx context.Context, coachID, id string, published bool) (*Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.programs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if existing.CoachID != coachID {
		return nil, ErrNotOwner
	}

	existing.Published = published
	existing.UpdatedAt = time.Now()

	return copyProgram(existing), nil
}

func (r *InMemoryRepository) ReorderProgramWorkouts(ctx context.Context, coachID, programID string, workoutIDs []string) (*Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.programs[programID]
	if !ok {
		return nil, ErrNotFound
	}
	if existing.CoachID != coachID {
		return nil, ErrNotOwner
	}
	if !samePermutation(existing.WorkoutIDs, workoutIDs) {
		return nil, ErrUnknownReference
	}

	existing.WorkoutIDs = append([]string(nil), workoutIDs...)
	existing.UpdatedAt = time.Now()

	return copyProgram(existing), nil
}

// --- helpers ---

// samePermutation reports whether b is a reordering of a with no additions,
// removals, or duplicates.
func samePermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}

// normalizeVariantPositions rewrites positions to match slice order.
func normalizeVariantPositions(variants []Variant) {
	for i := range variants {
		variants[i].Position = i
	}
}

func copyExercise(e *Exercise) *Exercise {
	copied := *e
	copied.VideoURL = copyStringPtr(e.VideoURL)
	return &copied
}

func copyProtocol(p *Protocol) *Protocol {
	copied := *p
	copied.Notes = copyStringPtr(p.Notes)
	return &copied
}

func copyBlock(b *Block) *Block {
	copied := *b
	copied.Variants = make([]Variant, len(b.Variants))
	for i, v := range b.Variants {
		copied.Variants[i] = v
		copied.Variants[i].Label = copyStringPtr(v.Label)
	}
	return &copied
}

func copyWorkout(w *Workout) *Workout {
	copied := *w
	copied.BlockIDs = append([]string(nil), w.BlockIDs...)
	return &copied
}

func copyProgram(p *Program) *Program {
	copied := *p
	copied.WorkoutIDs = append([]string(nil), p.WorkoutIDs...)
	return &copied
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	copied := *s
	return &copied
}
