package repo

import (
	"context"
	"database/sql"

	"wellcheck/internal/domain"
)

type EventFilter struct {
	Type       string
	EmployeeID string
	AfterID    int64
	Limit      int
}

// ListEvents returns events oldest first.
func (r Repo) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,entity_id,employee_id,actor_id,payload_json FROM events WHERE id > ?`
	args := []any{f.AfterID}
	if f.Type != "" {
		query += ` AND type=?`
		args = append(args, f.Type)
	}
	if f.EmployeeID != "" {
		query += ` AND employee_id=?`
		args = append(args, f.EmployeeID)
	}
	query += ` ORDER BY id ASC`
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, employeeID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &employeeID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.EmployeeID = employeeID.String
		res = append(res, e)
	}
	return res, rows.Err()
}
