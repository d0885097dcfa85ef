package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"wellcheck/internal/domain"
)

// ActiveThresholds returns the highest stored version.
func (r Repo) ActiveThresholds(ctx context.Context, q Querier) (domain.ThresholdConfig, error) {
	var cfg domain.ThresholdConfig
	var payload, updatedAt string
	var updatedBy sql.NullString
	err := q.QueryRowContext(ctx, `SELECT version,config_json,updated_by,updated_at FROM threshold_configs ORDER BY version DESC LIMIT 1`).
		Scan(&cfg.Version, &payload, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, ErrNotFound
	}
	if err != nil {
		return cfg, err
	}
	version := cfg.Version
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return cfg, fmt.Errorf("decode threshold config v%d: %w", version, err)
	}
	cfg.Version = version
	cfg.UpdatedBy = updatedBy.String
	if cfg.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// InsertThresholds stores cfg as a new version. The primary key rejects a
// second writer racing for the same version number.
func (r Repo) InsertThresholds(ctx context.Context, tx *sql.Tx, cfg domain.ThresholdConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO threshold_configs(version,config_json,updated_by,updated_at) VALUES (?,?,?,?)`,
		cfg.Version, string(payload), nullable(cfg.UpdatedBy), FormatTime(cfg.UpdatedAt))
	return err
}

func (r Repo) ListThresholdVersions(ctx context.Context, limit int) ([]domain.ThresholdConfig, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT version,config_json,updated_by,updated_at FROM threshold_configs ORDER BY version DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ThresholdConfig
	for rows.Next() {
		var cfg domain.ThresholdConfig
		var version int
		var payload, updatedAt string
		var updatedBy sql.NullString
		if err := rows.Scan(&version, &payload, &updatedBy, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
			return nil, fmt.Errorf("decode threshold config v%d: %w", version, err)
		}
		cfg.Version = version
		cfg.UpdatedBy = updatedBy.String
		if cfg.UpdatedAt, err = ParseTime(updatedAt); err != nil {
			return nil, err
		}
		res = append(res, cfg)
	}
	return res, rows.Err()
}
