package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"wellcheck/internal/domain"
)

const criticalColumns = `id,employee_id,department_id,emotion_score_at_trigger,created_at,last_critical_at,is_resolved,resolved_at`

func scanCritical(row rowScanner) (domain.CriticalRecord, error) {
	var rec domain.CriticalRecord
	var dept, resolvedAt sql.NullString
	var createdAt, lastAt string
	var resolved int
	if err := row.Scan(&rec.ID, &rec.EmployeeID, &dept, &rec.EmotionScoreAtTrigger, &createdAt, &lastAt, &resolved, &resolvedAt); err != nil {
		return rec, err
	}
	rec.DepartmentID = dept.String
	rec.IsResolved = resolved == 1
	var err error
	if rec.CreatedAt, err = ParseTime(createdAt); err != nil {
		return rec, err
	}
	if rec.LastCriticalAt, err = ParseTime(lastAt); err != nil {
		return rec, err
	}
	rec.ResolvedAt, err = parseNullTime(resolvedAt)
	return rec, err
}

func (r Repo) InsertCriticalRecord(ctx context.Context, tx *sql.Tx, rec domain.CriticalRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO critical_records(`+criticalColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		rec.ID, rec.EmployeeID, nullable(rec.DepartmentID), rec.EmotionScoreAtTrigger,
		FormatTime(rec.CreatedAt), FormatTime(rec.LastCriticalAt), boolInt(rec.IsResolved), formatTimePtr(rec.ResolvedAt))
	return err
}

func (r Repo) GetCriticalRecord(ctx context.Context, q Querier, id string) (domain.CriticalRecord, error) {
	rec, err := scanCritical(q.QueryRowContext(ctx, `SELECT `+criticalColumns+` FROM critical_records WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

// OpenCriticalRecord returns the employee's unresolved record.
func (r Repo) OpenCriticalRecord(ctx context.Context, q Querier, employeeID string) (domain.CriticalRecord, error) {
	rec, err := scanCritical(q.QueryRowContext(ctx, `SELECT `+criticalColumns+` FROM critical_records WHERE employee_id=? AND is_resolved=0`, employeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

func (r Repo) TouchCriticalRecord(ctx context.Context, tx *sql.Tx, id string, lastCriticalAt time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE critical_records SET last_critical_at=? WHERE id=? AND last_critical_at < ?`,
		FormatTime(lastCriticalAt), id, FormatTime(lastCriticalAt))
	return err
}

// ResolveCriticalRecord closes an open record; closing an already resolved
// one is ErrNotFound so callers cannot resolve twice.
func (r Repo) ResolveCriticalRecord(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE critical_records SET is_resolved=1, resolved_at=? WHERE id=? AND is_resolved=0`, FormatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type CriticalFilter struct {
	EmployeeID string
	OpenOnly   bool
	Limit      int
}

func (r Repo) ListCriticalRecords(ctx context.Context, f CriticalFilter) ([]domain.CriticalRecord, error) {
	query := `SELECT ` + criticalColumns + ` FROM critical_records WHERE 1=1`
	var args []any
	if f.EmployeeID != "" {
		query += ` AND employee_id=?`
		args = append(args, f.EmployeeID)
	}
	if f.OpenOnly {
		query += ` AND is_resolved=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CriticalRecord
	for rows.Next() {
		rec, err := scanCritical(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
