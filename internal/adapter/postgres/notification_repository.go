package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briankwest/imglink/internal/domain"
)

// notificationColumns must match the Scan order in scanNotification.
const notificationColumns = `id, user_id, type, title, message, related_user_id, related_image_id, read, read_at, created_at`

// NotificationRepo persists per-user notifications.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// List returns a user's notifications, newest first. It backs the durable
// catch-up fetch clients run after a connection gap and the polling fallback.
func (r *NotificationRepo) List(ctx context.Context, userID int64, unreadOnly bool, skip, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC OFFSET $2 LIMIT $3`

	rows, err := r.pool.Query(ctx, query, userID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.RelatedUserID, &n.RelatedImageID, &n.Read, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return notifications, nil
}

func (r *NotificationRepo) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification as read. The user ID scopes the update so
// a client can only touch its own notifications.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, notificationID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE, read_at = now() WHERE id = $1 AND user_id = $2 AND read = FALSE`,
		notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.checkExists(ctx, userID, notificationID)
	}
	return nil
}

// checkExists distinguishes "already read" (a no-op) from "not yours or not
// there" after an update touched zero rows.
func (r *NotificationRepo) checkExists(ctx context.Context, userID, notificationID int64) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`,
		notificationID, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check notification: %w", err)
	}
	if !exists {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE, read_at = now() WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepo) Delete(ctx context.Context, userID, notificationID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepo) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Create stores a notification and fills in its ID and creation time.
func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, title, message, related_user_id, related_image_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		n.UserID, n.Type, n.Title, n.Message, n.RelatedUserID, n.RelatedImageID,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
