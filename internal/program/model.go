// Package program provides the coach-authored training catalog: exercises,
// protocols, blocks, workouts, and sellable programs.
package program

import "time"

// Exercise is a single movement a coach can prescribe.
type Exercise struct {
	ID          string    `json:"id"`
	CoachID     string    `json:"coach_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	VideoURL    *string   `json:"video_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Protocol is a set/rep/tempo prescription applied to an exercise.
type Protocol struct {
	ID          string    `json:"id"`
	CoachID     string    `json:"coach_id"`
	Name        string    `json:"name"`
	Sets        int       `json:"sets"`
	Reps        string    `json:"reps"`  // free-form, e.g. "8-12" or "AMRAP"
	Tempo       string    `json:"tempo,omitempty"` // e.g. "3-1-1-0"
	RestSeconds int       `json:"rest_seconds"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Variant is one exercise+protocol pairing inside a block. Position is the
// variant's place in the block's ordered list.
type Variant struct {
	Position   int     `json:"position"`
	ExerciseID string  `json:"exercise_id"`
	ProtocolID string  `json:"protocol_id"`
	Label      *string `json:"label,omitempty"` // e.g. "A1", "A2" for supersets
}

// Block is an ordered grouping of exercise variants, the reusable building
// unit of workouts.
type Block struct {
	ID        string    `json:"id"`
	CoachID   string    `json:"coach_id"`
	Name      string    `json:"name"`
	Variants  []Variant `json:"variants"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Workout is an ordered sequence of blocks.
type Workout struct {
	ID        string    `json:"id"`
	CoachID   string    `json:"coach_id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	BlockIDs  []string  `json:"block_ids"` // ordered
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Program is the sellable unit: an ordered sequence of workouts with a price.
// Only published programs are visible to athletes and purchasable.
type Program struct {
	ID          string    `json:"id"`
	CoachID     string    `json:"coach_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	WorkoutIDs  []string  `json:"workout_ids"` // ordered
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
