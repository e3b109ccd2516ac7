package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

var batchColumns = []string{
	"id", "story_ids", "handle", "status", "submit_attempts", "last_error",
	"created_at", "submitted_at", "completed_at", "archived_at",
}

// PostgresBatchJobRepository tracks batch summarization jobs in Postgres.
type PostgresBatchJobRepository struct {
	db DB
}

var _ ports.BatchJobRepository = (*PostgresBatchJobRepository)(nil)

func NewPostgresBatchJobRepository(db DB) *PostgresBatchJobRepository {
	return &PostgresBatchJobRepository{db: db}
}

// Create inserts a new job.
func (r *PostgresBatchJobRepository) Create(ctx context.Context, job *domain.BatchJob) error {
	ids, err := json.Marshal(job.StoryIDs)
	if err != nil {
		return fmt.Errorf("encode story ids: %w", err)
	}

	query, args, err := psql.Insert("batch_jobs").Columns(batchColumns...).Values(
		job.ID, ids, job.Handle, string(job.Status), job.SubmitAttempts, job.LastError,
		job.CreatedAt, job.SubmittedAt, job.CompletedAt, job.ArchivedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert batch job: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a job.
func (r *PostgresBatchJobRepository) Update(ctx context.Context, job *domain.BatchJob) error {
	ids, err := json.Marshal(job.StoryIDs)
	if err != nil {
		return fmt.Errorf("encode story ids: %w", err)
	}

	query, args, err := psql.Update("batch_jobs").SetMap(map[string]any{
		"story_ids":       ids,
		"handle":          job.Handle,
		"status":          string(job.Status),
		"submit_attempts": job.SubmitAttempts,
		"last_error":      job.LastError,
		"submitted_at":    job.SubmittedAt,
		"completed_at":    job.CompletedAt,
	}).Where(sq.Eq{"id": job.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update batch job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchJobNotFound
	}
	return nil
}

// ListOpen returns unarchived jobs, oldest first.
func (r *PostgresBatchJobRepository) ListOpen(ctx context.Context) ([]domain.BatchJob, error) {
	query, args, err := psql.Select(batchColumns...).From("batch_jobs").
		Where(sq.Eq{"archived_at": nil}).
		OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batch jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.BatchJob
	for rows.Next() {
		var (
			job    domain.BatchJob
			ids    []byte
			status string
		)
		if err := rows.Scan(&job.ID, &ids, &job.Handle, &status, &job.SubmitAttempts, &job.LastError,
			&job.CreatedAt, &job.SubmittedAt, &job.CompletedAt, &job.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan batch job: %w", err)
		}
		if err := json.Unmarshal(ids, &job.StoryIDs); err != nil {
			return nil, fmt.Errorf("decode story ids: %w", err)
		}
		job.Status = domain.BatchJobStatus(status)
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// Archive hides a finished job from ListOpen.
func (r *PostgresBatchJobRepository) Archive(ctx context.Context, id string, at time.Time) error {
	query, args, err := psql.Update("batch_jobs").Set("archived_at", at).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("archive batch job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchJobNotFound
	}
	return nil
}
