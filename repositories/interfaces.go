// Package repositories defines the persistence contracts for the optional
// attempt archive.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openassist/llm-orchestrator/models"
)

// AttemptRepository persists attempt records beyond the tracker's in-memory
// window. The orchestrator runs fully without it; archiving is best effort.
type AttemptRepository interface {
	// SaveAttempts inserts a batch of attempt records
	SaveAttempts(ctx context.Context, records []models.AttemptRecord) error

	// GetByRequestID retrieves the attempt history of one request
	GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]models.AttemptRecord, error)

	// GetSince retrieves attempt records completed after the cutoff,
	// newest first, bounded by limit
	GetSince(ctx context.Context, cutoff time.Time, limit int) ([]models.AttemptRecord, error)
}
