package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/pkg/database"
)

const notificationJobColumns = `id, type, user_id, title, message, priority, scheduled_at, sent, cancelled, sent_at, cancelled_at, action_url, reference_id, attempts, metadata, created_at`

// NotificationJobRepository persists scheduled notifications. Every terminal
// transition is a conditional update on the pending state, so the first writer wins.
type NotificationJobRepository struct {
	db *sqlx.DB
}

// NewNotificationJobRepository constructs the repository.
func NewNotificationJobRepository(db *sqlx.DB) *NotificationJobRepository {
	return &NotificationJobRepository{db: db}
}

// Create inserts a pending job.
func (r *NotificationJobRepository) Create(ctx context.Context, job *models.NotificationJob) error {
	if job == nil {
		return fmt.Errorf("notification job is nil")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if len(job.Metadata) == 0 {
		job.Metadata = types.JSONText(`{}`)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Sent = false
	job.Cancelled = false

	const query = `
INSERT INTO scheduled_notifications (id, type, user_id, title, message, priority, scheduled_at, sent, cancelled, action_url, reference_id, attempts, metadata, created_at)
VALUES (:id, :type, :user_id, :title, :message, :priority, :scheduled_at, :sent, :cancelled, :action_url, :reference_id, :attempts, :metadata, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("insert notification job: %w", err)
	}
	return nil
}

// FindByID loads a job.
func (r *NotificationJobRepository) FindByID(ctx context.Context, id string) (*models.NotificationJob, error) {
	query := `SELECT ` + notificationJobColumns + ` FROM scheduled_notifications WHERE id = $1`
	var job models.NotificationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find notification job: %w", err)
	}
	return &job, nil
}

// ClaimAndRecord marks a pending job sent and writes its inbox entry in one
// transaction. claimed is false when the job already left the pending state.
func (r *NotificationJobRepository) ClaimAndRecord(ctx context.Context, id string, now time.Time, inbox *models.Notification) (bool, error) {
	claimed := false
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		const claim = `UPDATE scheduled_notifications SET sent = TRUE, sent_at = $2
WHERE id = $1 AND sent = FALSE AND cancelled = FALSE`
		result, err := tx.ExecContext(ctx, claim, id, now)
		if err != nil {
			return fmt.Errorf("claim notification job: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}
		if inbox != nil {
			if err := insertNotification(ctx, tx, inbox); err != nil {
				return err
			}
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// RecordFailure bumps the attempt counter of a job that is still pending.
func (r *NotificationJobRepository) RecordFailure(ctx context.Context, id string) error {
	const query = `UPDATE scheduled_notifications SET attempts = attempts + 1 WHERE id = $1 AND sent = FALSE AND cancelled = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("record notification failure: %w", err)
	}
	return nil
}

// Cancel marks a pending job cancelled. cancelled is false when the job was already
// terminal; sql.ErrNoRows is returned for an unknown id.
func (r *NotificationJobRepository) Cancel(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE scheduled_notifications SET cancelled = TRUE, cancelled_at = $2
WHERE id = $1 AND sent = FALSE AND cancelled = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("cancel notification job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM scheduled_notifications WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check notification job: %w", err)
	}
	if !exists {
		return false, sql.ErrNoRows
	}
	return false, nil
}

// CancelByReference cancels every pending job tied to referenceID and returns their ids.
func (r *NotificationJobRepository) CancelByReference(ctx context.Context, referenceID string, now time.Time) ([]string, error) {
	const query = `UPDATE scheduled_notifications SET cancelled = TRUE, cancelled_at = $2
WHERE reference_id = $1 AND sent = FALSE AND cancelled = FALSE RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, referenceID, now); err != nil {
		return nil, fmt.Errorf("cancel notification jobs by reference: %w", err)
	}
	return ids, nil
}

// ListPendingBefore returns pending jobs due at or before until that have not
// exhausted maxAttempts, oldest first.
func (r *NotificationJobRepository) ListPendingBefore(ctx context.Context, until time.Time, maxAttempts, limit int) ([]models.NotificationJob, error) {
	query := `SELECT ` + notificationJobColumns + ` FROM scheduled_notifications
WHERE sent = FALSE AND cancelled = FALSE AND scheduled_at <= $1 AND attempts < $2
ORDER BY scheduled_at LIMIT $3`
	var jobs []models.NotificationJob
	if err := r.db.SelectContext(ctx, &jobs, query, until, maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("list pending notification jobs: %w", err)
	}
	return jobs, nil
}
