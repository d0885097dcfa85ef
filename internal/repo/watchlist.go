package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"wellcheck/internal/domain"
)

func scanWatchlist(row rowScanner) (domain.WatchlistEntry, error) {
	var w domain.WatchlistEntry
	var movedAt, trackUntil string
	if err := row.Scan(&w.EmployeeID, &w.CriticalRecordID, &movedAt, &trackUntil); err != nil {
		return w, err
	}
	var err error
	if w.MovedAt, err = ParseTime(movedAt); err != nil {
		return w, err
	}
	w.TrackUntil, err = ParseTime(trackUntil)
	return w, err
}

func (r Repo) GetWatchlistEntry(ctx context.Context, q Querier, employeeID string) (domain.WatchlistEntry, error) {
	w, err := scanWatchlist(q.QueryRowContext(ctx, `SELECT employee_id,critical_record_id,moved_at,track_until FROM watchlist_entries WHERE employee_id=?`, employeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) InsertWatchlistEntry(ctx context.Context, tx *sql.Tx, w domain.WatchlistEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO watchlist_entries(employee_id,critical_record_id,moved_at,track_until) VALUES (?,?,?,?)`,
		w.EmployeeID, w.CriticalRecordID, FormatTime(w.MovedAt), FormatTime(w.TrackUntil))
	return err
}

func (r Repo) DeleteWatchlistEntry(ctx context.Context, tx *sql.Tx, employeeID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM watchlist_entries WHERE employee_id=?`, employeeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWatchlist returns entries ordered by expiry. With expiredAt set, only
// entries whose track_until is at or before it are returned.
func (r Repo) ListWatchlist(ctx context.Context, expiredAt *time.Time) ([]domain.WatchlistEntry, error) {
	query := `SELECT employee_id,critical_record_id,moved_at,track_until FROM watchlist_entries`
	var args []any
	if expiredAt != nil {
		query += ` WHERE track_until <= ?`
		args = append(args, FormatTime(*expiredAt))
	}
	query += ` ORDER BY track_until ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WatchlistEntry
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}
