package repo

import (
	"context"
	"database/sql"
	"time"

	"wellcheck/internal/domain"
)

const checkInColumns = `id,employee_id,department_id,ts,local_day,raw_score,emotion_label,tier,threshold_version`

func (r Repo) InsertCheckIn(ctx context.Context, tx *sql.Tx, c domain.CheckIn) error {
	var tier any
	if c.Tier != nil {
		tier = string(*c.Tier)
	}
	var version any
	if c.ThresholdVersion != nil {
		version = *c.ThresholdVersion
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO check_ins(`+checkInColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.EmployeeID, nullable(c.DepartmentID), FormatTime(c.TimestampUTC), c.LocalDay,
		nullableFloatPtr(c.RawScore), nullable(c.EmotionLabel), tier, version)
	return err
}

func scanCheckIn(row rowScanner) (domain.CheckIn, error) {
	var c domain.CheckIn
	var dept, label, tier sql.NullString
	var score sql.NullFloat64
	var version sql.NullInt64
	var ts string
	if err := row.Scan(&c.ID, &c.EmployeeID, &dept, &ts, &c.LocalDay, &score, &label, &tier, &version); err != nil {
		return c, err
	}
	c.DepartmentID = dept.String
	c.EmotionLabel = label.String
	if score.Valid {
		v := score.Float64
		c.RawScore = &v
	}
	if tier.Valid {
		t := domain.Tier(tier.String)
		c.Tier = &t
	}
	if version.Valid {
		v := int(version.Int64)
		c.ThresholdVersion = &v
	}
	var err error
	c.TimestampUTC, err = ParseTime(ts)
	return c, err
}

// CheckInsBetween lists check-ins with from <= ts < to, oldest first. An empty
// employeeID spans every employee.
func (r Repo) CheckInsBetween(ctx context.Context, q Querier, employeeID string, from, to time.Time) ([]domain.CheckIn, error) {
	query := `SELECT ` + checkInColumns + ` FROM check_ins WHERE ts >= ? AND ts < ?`
	args := []any{FormatTime(from), FormatTime(to)}
	if employeeID != "" {
		query += ` AND employee_id=?`
		args = append(args, employeeID)
	}
	query += ` ORDER BY ts ASC, id ASC`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CountTiersBetween groups stored tiers of check-ins in [from, to).
// Check-ins without a tier are not counted.
func (r Repo) CountTiersBetween(ctx context.Context, from, to time.Time) (map[domain.Tier]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT tier, COUNT(*) FROM check_ins WHERE ts >= ? AND ts < ? AND tier IS NOT NULL GROUP BY tier`,
		FormatTime(from), FormatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Tier]int{}
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		res[domain.Tier(tier)] = n
	}
	return res, rows.Err()
}
