package repo

import (
	"context"
	"time"
)

// ClaimDelivery records key as delivered. It reports false when the key was
// already recorded, so a retried job does not act twice.
func (r Repo) ClaimDelivery(ctx context.Context, q Querier, key, jobType string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO deliveries(idempotency_key,job_type,delivered_at) VALUES (?,?,?) ON CONFLICT(idempotency_key) DO NOTHING`,
		key, jobType, FormatTime(at))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseDelivery forgets key after a failed send so the next attempt can
// claim it again.
func (r Repo) ReleaseDelivery(ctx context.Context, q Querier, key string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM deliveries WHERE idempotency_key=?`, key)
	return err
}
