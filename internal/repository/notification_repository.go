package repository

import (
	"context"
	"database/sql"
	"time"

	"smartmart/internal/entity"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *entity.Notification) error {
	n.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `INSERT INTO notifications (user_id, type, title, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.UserID, n.Type, n.Title, n.Body, n.CreatedAt)
	if err != nil {
		return err
	}
	n.ID, err = res.LastInsertId()
	return err
}

func (r *NotificationRepository) GetNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	query := `SELECT id, user_id, type, title, body, read_at, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		var (
			n      entity.Notification
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ReadAt = timePtr(readAt)
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID).Scan(&count)
	return count, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 for rows already read; tell that apart from a missing row.
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE id = ? AND user_id = ?`, id, userID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`, time.Now().UTC(), userID)
	return err
}
