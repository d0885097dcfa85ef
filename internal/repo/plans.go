package repo

import (
	"context"
	"database/sql"
	"errors"

	"wellcheck/internal/domain"
)

const planColumns = `id,critical_record_id,employee_id,priority,assign_to,due_date,action_notes,follow_up_notes,status,suggestions,created_by,decided_by,created_at,decided_at`

func scanPlan(row rowScanner) (domain.ActionPlan, error) {
	var p domain.ActionPlan
	var followUp, suggestions, decidedBy, decidedAt sql.NullString
	var status, createdAt string
	if err := row.Scan(&p.ID, &p.CriticalRecordID, &p.EmployeeID, &p.Priority, &p.AssignTo, &p.DueDate, &p.ActionNotes,
		&followUp, &status, &suggestions, &p.CreatedBy, &decidedBy, &createdAt, &decidedAt); err != nil {
		return p, err
	}
	p.FollowUpNotes = followUp.String
	p.Suggestions = suggestions.String
	p.DecidedBy = decidedBy.String
	p.Status = domain.PlanStatus(status)
	var err error
	if p.CreatedAt, err = ParseTime(createdAt); err != nil {
		return p, err
	}
	p.DecidedAt, err = parseNullTime(decidedAt)
	return p, err
}

func (r Repo) InsertActionPlan(ctx context.Context, tx *sql.Tx, p domain.ActionPlan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO action_plans(`+planColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.CriticalRecordID, p.EmployeeID, p.Priority, p.AssignTo, p.DueDate, p.ActionNotes,
		nullable(p.FollowUpNotes), string(p.Status), nullable(p.Suggestions), p.CreatedBy,
		nullable(p.DecidedBy), FormatTime(p.CreatedAt), formatTimePtr(p.DecidedAt))
	return err
}

func (r Repo) GetActionPlan(ctx context.Context, q Querier, id string) (domain.ActionPlan, error) {
	p, err := scanPlan(q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM action_plans WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// ActivePlanForRecord returns the pending or approved plan of a record.
func (r Repo) ActivePlanForRecord(ctx context.Context, q Querier, recordID string) (domain.ActionPlan, error) {
	p, err := scanPlan(q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM action_plans WHERE critical_record_id=? AND status != 'rejected'`, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// DecideActionPlan moves a pending plan to its final status. A plan that is no
// longer pending yields ErrNotFound.
func (r Repo) DecideActionPlan(ctx context.Context, tx *sql.Tx, p domain.ActionPlan) error {
	res, err := tx.ExecContext(ctx, `UPDATE action_plans SET status=?, suggestions=?, decided_by=?, decided_at=? WHERE id=? AND status='pending'`,
		string(p.Status), nullable(p.Suggestions), nullable(p.DecidedBy), formatTimePtr(p.DecidedAt), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdatePlanSuggestions(ctx context.Context, tx *sql.Tx, id, suggestions string) error {
	res, err := tx.ExecContext(ctx, `UPDATE action_plans SET suggestions=? WHERE id=? AND status='pending'`, nullable(suggestions), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type PlanFilter struct {
	CriticalRecordID string
	EmployeeID       string
	Status           domain.PlanStatus
	Limit            int
}

func (r Repo) ListActionPlans(ctx context.Context, f PlanFilter) ([]domain.ActionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM action_plans WHERE 1=1`
	var args []any
	if f.CriticalRecordID != "" {
		query += ` AND critical_record_id=?`
		args = append(args, f.CriticalRecordID)
	}
	if f.EmployeeID != "" {
		query += ` AND employee_id=?`
		args = append(args, f.EmployeeID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, string(f.Status))
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
	var res []domain.ActionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
