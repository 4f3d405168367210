package payment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// PostgresEventRepository implements EventRepository using PostgreSQL.
type PostgresEventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresEventRepository creates a new PostgresEventRepository.
func NewPostgresEventRepository(db *sql.DB, logger *slog.Logger) *PostgresEventRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresEventRepository{
		db:     db,
		logger: logger,
	}
}

// RecordEvent appends an event. The unique index on event_id makes duplicate
// detection a single statement: zero rows affected means another delivery of
// the same event already landed.
func (r *PostgresEventRepository) RecordEvent(ctx context.Context, params RecordParams) (*Event, error) {
	query := `
		INSERT INTO payment_events (id, event_id, type, user_id, program_id, amount_total, currency, external_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id, event_id, type, user_id, program_id, amount_total, currency, external_reference, created_at
	`

	event := &Event{}
	err := r.db.QueryRowContext(ctx, query,
		uuid.New().String(), params.EventID, params.Type,
		params.UserID, params.ProgramID, params.AmountTotal,
		params.Currency, params.ExternalReference,
	).Scan(
		&event.ID, &event.EventID, &event.Type,
		&event.UserID, &event.ProgramID, &event.AmountTotal,
		&event.Currency, &event.ExternalReference, &event.CreatedAt,
	)
	if err == sql.ErrNoRows {
		// Conflict path: DO NOTHING returns no row.
		return nil, ErrEventAlreadyProcessed
	}
	if err != nil {
		r.logger.Error("failed to record payment event",
			slog.String("error", err.Error()),
			slog.String("event_id", params.EventID),
			slog.String("type", params.Type))
		return nil, fmt.Errorf("failed to record payment event: %w", err)
	}

	return event, nil
}

// HasProcessed checks whether an event_id has already been recorded.
func (r *PostgresEventRepository) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM payment_events WHERE event_id = $1)`
	err := r.db.QueryRowContext(ctx, query, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check payment event: %w", err)
	}
	return exists, nil
}

// ListByUser returns events attributed to a user, newest first.
func (r *PostgresEventRepository) ListByUser(ctx context.Context, userID string) ([]*Event, error) {
	query := `
		SELECT id, event_id, type, user_id, program_id, amount_total, currency, external_reference, created_at
		FROM payment_events
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID, &event.EventID, &event.Type,
			&event.UserID, &event.ProgramID, &event.AmountTotal,
			&event.Currency, &event.ExternalReference, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment events: %w", err)
	}

	return events, nil
}
