package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/shared"
)

// JobRecord is a persisted job together with its history sequence number.
type JobRecord struct {
	Sequence int
	Job      *models.Job
}

// JobRepository stores terminal jobs and their items. It satisfies jobs.Recorder.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `
	id, sequence, status, target_folder_id, target_folder_name, concurrency,
	total_items, completed_items, succeeded_items, failed_items, error_message,
	created_at, completed_at, updated_at
`

// RecordJob inserts the job, or replaces the stored copy when the id already exists.
func (r *JobRepository) RecordJob(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrInvalidInput)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM jobs WHERE id = ?)", job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}

	var sequence int
	if !exists {
		var err error
		if sequence, err = NextSequence(ctx, r.db, "jobs"); err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var completedAt any
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}

	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, target_folder_id = ?, target_folder_name = ?, concurrency = ?,
				total_items = ?, completed_items = ?, succeeded_items = ?, failed_items = ?,
				error_message = ?, completed_at = ?, updated_at = ?, deleted_at = NULL
			WHERE id = ?
		`,
			job.Status, nullString(job.TargetFolderID), nullString(job.TargetFolderName), job.Concurrency,
			job.TotalItems, job.CompletedItems, job.SucceededItems, job.FailedItems,
			nullString(job.Error), completedAt, job.UpdatedAt, job.ID,
		)
		if err == nil {
			_, err = tx.ExecContext(ctx, "DELETE FROM job_items WHERE job_id = ?", job.ID)
		}
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, sequence, job.Status, nullString(job.TargetFolderID), nullString(job.TargetFolderName), job.Concurrency,
			job.TotalItems, job.CompletedItems, job.SucceededItems, job.FailedItems, nullString(job.Error),
			job.CreatedAt, completedAt, job.UpdatedAt,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to write job: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO job_items (
			job_id, item_index, source, kind, source_id, status, message,
			result_id, result_name, result_size, files_copied, error_message
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range job.Items {
		var resultID, resultName, resultSize, filesCopied any
		if item.Result != nil {
			resultID, resultName = item.Result.ID, item.Result.Name
			resultSize, filesCopied = item.Result.Size, item.Result.FilesCopied
		}

		_, err := stmt.ExecContext(ctx,
			job.ID, item.Index, item.Source, nullString(string(item.Reference.Kind)), nullString(item.Reference.ID),
			item.Status, nullString(item.Message), resultID, resultName, resultSize, filesCopied, nullString(item.Error),
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %d: %w", item.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

// Get retrieves a job and its items by ID, excluding soft-deleted jobs
func (r *JobRepository) Get(ctx context.Context, id string) (*JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND deleted_at IS NULL`

	rec, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Job.Items = items
	return rec, nil
}

// List retrieves job summaries (without items) newest first, excluding soft-deleted jobs.
//
// Supported criteria: "status" (string) and "limit" (int).
func (r *JobRepository) List(ctx context.Context, criteria map[string]any) ([]*JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE deleted_at IS NULL`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC, sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var records []*JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return records, nil
}

// Delete soft-deletes a job by ID
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return nil
}

// Prune hard-deletes jobs created before cutoff, items included, and returns how many were removed.
func (r *JobRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM job_items WHERE job_id IN (SELECT id FROM jobs WHERE created_at < ?)", cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune items: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, tx.Commit()
}

func (r *JobRepository) items(ctx context.Context, jobID string) ([]models.CopyItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_index, source, kind, source_id, status, message,
			result_id, result_name, result_size, files_copied, error_message
		FROM job_items
		WHERE job_id = ?
		ORDER BY item_index
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.CopyItem
	for rows.Next() {
		var (
			item                         models.CopyItem
			kind, sourceID, message      sql.NullString
			resultID, resultName, errMsg sql.NullString
			resultSize, filesCopied      sql.NullInt64
			status                       string
		)
		if err := rows.Scan(
			&item.Index, &item.Source, &kind, &sourceID, &status, &message,
			&resultID, &resultName, &resultSize, &filesCopied, &errMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		item.Status = models.ItemStatus(status)
		item.Reference = models.Reference{Kind: models.Kind(kind.String), ID: sourceID.String, Raw: item.Source}
		item.Message = message.String
		item.Error = errMsg.String
		if item.Status == models.ItemSuccess {
			item.Percent = 100
		}
		if resultID.Valid {
			item.Result = &models.CopyResult{
				ID:          resultID.String,
				Name:        resultName.String,
				Size:        resultSize.Int64,
				FilesCopied: int(filesCopied.Int64),
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanJob scans a jobs row from [sql.Row] or [sql.Rows] into a [JobRecord]
func scanJob(s scanner) (*JobRecord, error) {
	var (
		job                          models.Job
		sequence                     int
		status                       string
		folderID, folderName, errMsg sql.NullString
		completedAt                  sql.NullTime
	)

	err := s.Scan(
		&job.ID, &sequence, &status, &folderID, &folderName, &job.Concurrency,
		&job.TotalItems, &job.CompletedItems, &job.SucceededItems, &job.FailedItems, &errMsg,
		&job.CreatedAt, &completedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = models.JobStatus(status)
	job.TargetFolderID = folderID.String
	job.TargetFolderName = folderName.String
	job.Error = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &JobRecord{Sequence: sequence, Job: &job}, nil
}
