package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/models"
)

func newMockRepo(t *testing.T) (*AttemptRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger, _ := zap.NewDevelopment()
	db := &DB{DB: mockDB, logger: logger}
	return &AttemptRepository{db: db, logger: logger}, mock
}

func sampleRecord(provider string) models.AttemptRecord {
	now := time.Now()
	return models.AttemptRecord{
		ID:            uuid.New(),
		RequestID:     uuid.New(),
		ProviderID:    provider,
		StartedAt:     now.Add(-40 * time.Millisecond),
		CompletedAt:   now,
		Outcome:       models.AttemptSuccess,
		Latency:       40 * time.Millisecond,
		EstimatedCost: 1.25,
	}
}

func TestAttemptRepository_SaveAttempts(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts all records in one transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		records := []models.AttemptRecord{sampleRecord("alpha"), sampleRecord("beta")}

		mock.ExpectBegin()
		prep := mock.ExpectPrepare("INSERT INTO attempt_records")
		for _, rec := range records {
			prep.ExpectExec().
				WithArgs(rec.ID, rec.RequestID, rec.ProviderID, rec.StartedAt, rec.CompletedAt,
					string(rec.Outcome), rec.Latency.Milliseconds(), rec.EstimatedCost, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()

		require.NoError(t, repo.SaveAttempts(ctx, records))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on insert failure", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		records := []models.AttemptRecord{sampleRecord("alpha")}

		mock.ExpectBegin()
		prep := mock.ExpectPrepare("INSERT INTO attempt_records")
		prep.ExpectExec().
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := repo.SaveAttempts(ctx, records)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert attempt record")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		require.NoError(t, repo.SaveAttempts(ctx, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttemptRepository_GetByRequestID(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "request_id", "provider_id", "started_at", "completed_at",
		"outcome", "latency_ms", "estimated_cost", "error_detail"}

	t.Run("scans rows into records", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		requestID := uuid.New()
		attemptID := uuid.New()
		started := time.Now().Add(-time.Second)
		completed := time.Now()

		rows := sqlmock.NewRows(columns).
			AddRow(attemptID.String(), requestID.String(), "alpha", started, completed,
				"error", int64(120), 0.0, "connection refused")
		mock.ExpectQuery("SELECT (.+) FROM attempt_records").
			WithArgs(requestID).
			WillReturnRows(rows)

		records, err := repo.GetByRequestID(ctx, requestID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, attemptID, records[0].ID)
		assert.Equal(t, "alpha", records[0].ProviderID)
		assert.Equal(t, models.AttemptError, records[0].Outcome)
		assert.Equal(t, 120*time.Millisecond, records[0].Latency)
		assert.Equal(t, "connection refused", records[0].ErrorDetail)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null error detail scans to empty string", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		requestID := uuid.New()

		rows := sqlmock.NewRows(columns).
			AddRow(uuid.New().String(), requestID.String(), "alpha", time.Now(), time.Now(),
				"success", int64(40), 1.25, nil)
		mock.ExpectQuery("SELECT (.+) FROM attempt_records").
			WithArgs(requestID).
			WillReturnRows(rows)

		records, err := repo.GetByRequestID(ctx, requestID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Empty(t, records[0].ErrorDetail)
	})

	t.Run("query failure surfaces", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM attempt_records").
			WillReturnError(errors.New("connection lost"))

		_, err := repo.GetByRequestID(ctx, uuid.New())
		assert.Error(t, err)
	})
}

func TestAttemptRepository_GetSince(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "request_id", "provider_id", "started_at", "completed_at",
		"outcome", "latency_ms", "estimated_cost", "error_detail"}

	repo, mock := newMockRepo(t)
	cutoff := time.Now().Add(-time.Hour)

	rows := sqlmock.NewRows(columns).
		AddRow(uuid.New().String(), uuid.New().String(), "beta", time.Now(), time.Now(),
			"timeout", int64(5000), 0.0, nil).
		AddRow(uuid.New().String(), uuid.New().String(), "alpha", time.Now(), time.Now(),
			"success", int64(80), 2.0, nil)
	mock.ExpectQuery("SELECT (.+) FROM attempt_records").
		WithArgs(cutoff, 100).
		WillReturnRows(rows)

	records, err := repo.GetSince(ctx, cutoff, 100)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.AttemptTimeout, records[0].Outcome)
	assert.Equal(t, "alpha", records[1].ProviderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
