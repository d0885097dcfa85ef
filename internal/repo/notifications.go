package repo

import (
	"context"
	"database/sql"
	"time"

	"wellcheck/internal/domain"
)

// InsertNotification stores n unless a notification with the same delivery
// key exists.
func (r Repo) InsertNotification(ctx context.Context, q Querier, n domain.Notification) error {
	_, err := q.ExecContext(ctx, `INSERT INTO notifications(id,delivery_key,kind,employee_id,title,body,created_at) VALUES (?,?,?,?,?,?,?) ON CONFLICT(delivery_key) DO NOTHING`,
		n.ID, n.DeliveryKey, n.Kind, nullable(n.EmployeeID), n.Title, nullable(n.Body), FormatTime(n.CreatedAt))
	return err
}

func (r Repo) ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id,delivery_key,kind,employee_id,title,body,created_at,read_at FROM notifications WHERE deleted_at IS NULL`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var employeeID, body, readAt sql.NullString
		var createdAt string
		if err := rows.Scan(&n.ID, &n.DeliveryKey, &n.Kind, &employeeID, &n.Title, &body, &createdAt, &readAt); err != nil {
			return nil, err
		}
		n.EmployeeID = employeeID.String
		n.Body = body.String
		if n.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		if n.ReadAt, err = parseNullTime(readAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead is idempotent for read notifications and
// ErrNotFound for missing or deleted ones.
func (r Repo) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=COALESCE(read_at, ?) WHERE id=? AND deleted_at IS NULL`, FormatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteNotification(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET deleted_at=? WHERE id=? AND deleted_at IS NULL`, FormatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
