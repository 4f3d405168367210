package access

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert atomically inserts or updates a grant keyed on (user_id, program_id).
// The conflict resolution happens in a single statement so concurrent webhook
// deliveries for the same purchase converge on one row.
func (r *PostgresRepository) Upsert(ctx context.Context, params UpsertParams) (*Grant, error) {
	query := `
		INSERT INTO access_grants (user_id, program_id, access_type, source, external_reference, expires_at, granted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id, program_id) DO UPDATE SET
			access_type = EXCLUDED.access_type,
			source = EXCLUDED.source,
			external_reference = EXCLUDED.external_reference,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING user_id, program_id, access_type, source, external_reference, expires_at, granted_at, updated_at
	`

	grant := &Grant{}
	err := r.db.QueryRowContext(ctx, query,
		params.UserID, params.ProgramID, params.AccessType,
		params.Source, params.ExternalReference, params.ExpiresAt,
	).Scan(
		&grant.UserID, &grant.ProgramID, &grant.AccessType,
		&grant.Source, &grant.ExternalReference, &grant.ExpiresAt,
		&grant.GrantedAt, &grant.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to upsert access grant",
			slog.String("error", err.Error()),
			slog.String("user_id", params.UserID),
			slog.String("program_id", params.ProgramID))
		return nil, fmt.Errorf("failed to upsert access grant: %w", err)
	}

	return grant, nil
}

// HasAccess reports whether a live grant exists for the user and program.
// Expired grants do not count.
func (r *PostgresRepository) HasAccess(ctx context.Context, userID, programID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM access_grants
			WHERE user_id = $1 AND program_id = $2
			AND (expires_at IS NULL OR expires_at > NOW())
		)
	`
	err := r.db.QueryRowContext(ctx, query, userID, programID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return exists, nil
}

// Get retrieves a grant by user and program.
func (r *PostgresRepository) Get(ctx context.Context, userID, programID string) (*Grant, error) {
	query := `
		SELECT user_id, program_id, access_type, source, external_reference, expires_at, granted_at, updated_at
		FROM access_grants
		WHERE user_id = $1 AND program_id = $2
	`

	grant := &Grant{}
	err := r.db.QueryRowContext(ctx, query, userID, programID).Scan(
		&grant.UserID, &grant.ProgramID, &grant.AccessType,
		&grant.Source, &grant.ExternalReference, &grant.ExpiresAt,
		&grant.GrantedAt, &grant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access grant: %w", err)
	}

	return grant, nil
}

// ListByProgram returns all grants for a program, newest first.
func (r *PostgresRepository) ListByProgram(ctx context.Context, programID string) ([]*Grant, error) {
	query := `
		SELECT user_id, program_id, access_type, source, external_reference, expires_at, granted_at, updated_at
		FROM access_grants
		WHERE program_id = $1
		ORDER BY granted_at DESC
	`
	return r.queryGrants(ctx, query, programID)
}

// ListByUser returns all grants held by a user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Grant, error) {
	query := `
		SELECT user_id, program_id, access_type, source, external_reference, expires_at, granted_at, updated_at
		FROM access_grants
		WHERE user_id = $1
		ORDER BY granted_at DESC
	`
	return r.queryGrants(ctx, query, userID)
}

// UpdateExpiry sets a new expiry on an existing grant. A nil expiry makes the
// grant unlimited.
func (r *PostgresRepository) UpdateExpiry(ctx context.Context, userID, programID string, expiresAt *time.Time) (*Grant, error) {
	query := `
		UPDATE access_grants
		SET expires_at = $3, updated_at = NOW()
		WHERE user_id = $1 AND program_id = $2
		RETURNING user_id, program_id, access_type, source, external_reference, expires_at, granted_at, updated_at
	`

	grant := &Grant{}
	err := r.db.QueryRowContext(ctx, query, userID, programID, expiresAt).Scan(
		&grant.UserID, &grant.ProgramID, &grant.AccessType,
		&grant.Source, &grant.ExternalReference, &grant.ExpiresAt,
		&grant.GrantedAt, &grant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update grant expiry: %w", err)
	}

	return grant, nil
}

// Revoke deletes a grant.
func (r *PostgresRepository) Revoke(ctx context.Context, userID, programID string) error {
	query := `DELETE FROM access_grants WHERE user_id = $1 AND program_id = $2`
	result, err := r.db.ExecContext(ctx, query, userID, programID)
	if err != nil {
		return fmt.Errorf("failed to revoke access grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrGrantNotFound
	}

	r.logger.Info("access grant revoked",
		slog.String("user_id", userID),
		slog.String("program_id", programID))
	return nil
}

func (r *PostgresRepository) queryGrants(ctx context.Context, query string, args ...any) ([]*Grant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access grants: %w", err)
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		grant := &Grant{}
		err := rows.Scan(
			&grant.UserID, &grant.ProgramID, &grant.AccessType,
			&grant.Source, &grant.ExternalReference, &grant.ExpiresAt,
			&grant.GrantedAt, &grant.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate access grants: %w", err)
	}

	return grants, nil
}
