package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/repositories"
)

// AttemptRepository implements the repositories.AttemptRepository interface
type AttemptRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAttemptRepository creates a new attempt archive repository
func NewAttemptRepository(db *DB, logger *zap.Logger) repositories.AttemptRepository {
	return &AttemptRepository{
		db:     db,
		logger: logger,
	}
}

// SaveAttempts inserts a batch of attempt records in one transaction.
func (r *AttemptRepository) SaveAttempts(ctx context.Context, records []models.AttemptRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO attempt_records (
			id, request_id, provider_id, started_at, completed_at,
			outcome, latency_ms, estimated_cost, error_detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.RequestID,
			rec.ProviderID,
			rec.StartedAt,
			rec.CompletedAt,
			string(rec.Outcome),
			rec.Latency.Milliseconds(),
			rec.EstimatedCost,
			nullString(rec.ErrorDetail),
		)
		if err != nil {
			return fmt.Errorf("failed to insert attempt record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempt records: %w", err)
	}

	r.logger.Debug("attempt records archived", zap.Int("count", len(records)))
	return nil
}

// GetByRequestID retrieves the attempt history of one request in start order.
func (r *AttemptRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]models.AttemptRecord, error) {
	query := `
		SELECT id, request_id, provider_id, started_at, completed_at,
		       outcome, latency_ms, estimated_cost, error_detail
		FROM attempt_records
		WHERE request_id = $1
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempt records: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// GetSince retrieves attempt records completed after the cutoff, newest first.
func (r *AttemptRepository) GetSince(ctx context.Context, cutoff time.Time, limit int) ([]models.AttemptRecord, error) {
	query := `
		SELECT id, request_id, provider_id, started_at, completed_at,
		       outcome, latency_ms, estimated_cost, error_detail
		FROM attempt_records
		WHERE completed_at > $1
		ORDER BY completed_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempt records: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]models.AttemptRecord, error) {
	var out []models.AttemptRecord
	for rows.Next() {
		var rec models.AttemptRecord
		var outcome string
		var latencyMs int64
		var errDetail sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.ProviderID,
			&rec.StartedAt,
			&rec.CompletedAt,
			&outcome,
			&latencyMs,
			&rec.EstimatedCost,
			&errDetail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt record: %w", err)
		}
		rec.Outcome = models.AttemptOutcome(outcome)
		rec.Latency = time.Duration(latencyMs) * time.Millisecond
		rec.ErrorDetail = errDetail.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attempt record iteration failed: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
