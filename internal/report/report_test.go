package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellcheck/internal/db"
	"wellcheck/internal/domain"
	"wellcheck/internal/migrate"
	"wellcheck/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return repo.Repo{DB: conn}
}

func insert(t *testing.T, r repo.Repo, id string, ts time.Time, tier *domain.Tier) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertCheckIn(ctx, tx, domain.CheckIn{
		ID: id, EmployeeID: "emp-" + id, TimestampUTC: ts, LocalDay: ts.Format("2006-01-02"), Tier: tier,
	}))
	require.NoError(t, tx.Commit())
}

func tierPtr(t domain.Tier) *domain.Tier { return &t }

func TestDailySummaryUsesLocalDayBounds(t *testing.T) {
	r := newRepo(t)
	// 2025-03-09 in New York runs 05:00Z to 04:00Z the next day.
	insert(t, r, "a", time.Date(2025, 3, 9, 4, 59, 0, 0, time.UTC), tierPtr(domain.TierPositive))
	insert(t, r, "b", time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC), tierPtr(domain.TierCritical))
	insert(t, r, "c", time.Date(2025, 3, 10, 3, 59, 0, 0, time.UTC), tierPtr(domain.TierNeutral))
	insert(t, r, "d", time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC), tierPtr(domain.TierNeutral))
	insert(t, r, "e", time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC), nil)

	rep := New(r, "UTC", time.Hour)
	rep.now = func() time.Time { return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC) }

	s, err := rep.DailySummary(context.Background(), "2025-03-09", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Counts[domain.TierCritical])
	assert.Equal(t, 1, s.Counts[domain.TierNeutral])
	assert.Equal(t, 23*time.Hour, s.Window.Duration())
	assert.False(t, s.Cached)
}

func TestPastDaysAreCachedUntilInvalidated(t *testing.T) {
	r := newRepo(t)
	insert(t, r, "a", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), tierPtr(domain.TierNegative))
	rep := New(r, "UTC", time.Hour)
	rep.now = func() time.Time { return time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	_, err := rep.DailySummary(ctx, "2025-01-01", "")
	require.NoError(t, err)
	insert(t, r, "b", time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC), tierPtr(domain.TierNegative))

	cached, err := rep.DailySummary(ctx, "2025-01-01", "")
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, 1, cached.Total)

	rep.Invalidate()
	assert.Zero(t, rep.Cached())
	fresh, err := rep.DailySummary(ctx, "2025-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Total)
}

func TestTodayIsNeverCached(t *testing.T) {
	r := newRepo(t)
	rep := New(r, "UTC", time.Hour)
	rep.now = func() time.Time { return time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC) }

	s, err := rep.DailySummary(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02", s.Window.Date)
	assert.Zero(t, rep.Cached())
}

func TestMalformedDateIsAnError(t *testing.T) {
	rep := New(newRepo(t), "UTC", time.Hour)
	_, err := rep.DailySummary(context.Background(), "01/02/2025", "")
	var verr domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}
