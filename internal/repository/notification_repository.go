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
)

const notificationColumns = `id, user_id, job_id, type, title, message, priority, action_url, metadata, read, read_at, created_at`

// NotificationRepository persists delivered notifications forming each user's inbox.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func insertNotification(ctx context.Context, exec sqlx.ExtContext, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if len(n.Metadata) == 0 {
		n.Metadata = types.JSONText(`{}`)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO notifications (id, user_id, job_id, type, title, message, priority, action_url, metadata, read, created_at)
VALUES (:id, :user_id, :job_id, :type, :title, :message, :priority, :action_url, :metadata, :read, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Create inserts an inbox entry.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return fmt.Errorf("notification is nil")
	}
	return insertNotification(ctx, r.db, n)
}

// ListByUser returns a page of the user's inbox, newest first, with the total count.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where := `WHERE user_id = $1`
	if filter.UnreadOnly {
		where += ` AND read = FALSE`
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications `+where, userID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := `SELECT ` + notificationColumns + ` FROM notifications ` + where + ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, userID, size, (page-1)*size); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead flags an inbox entry as read. sql.ErrNoRows is returned when the entry
// does not exist or belongs to another user.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, now time.Time) error {
	const query = `UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID, now)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark read rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountUnread returns the number of unread entries for the user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func normalisePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
