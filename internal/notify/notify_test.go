package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellcheck/internal/config"
	"wellcheck/internal/db"
	"wellcheck/internal/domain"
	"wellcheck/internal/events"
	"wellcheck/internal/jobs"
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

func seedRecord(t *testing.T, r repo.Repo, id string) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.InsertCriticalRecord(ctx, tx, domain.CriticalRecord{
		ID: id, EmployeeID: "emp-1", EmotionScoreAtTrigger: -0.95, CreatedAt: now, LastCriticalAt: now,
	}))
	require.NoError(t, tx.Commit())
}

func job(t *testing.T, jobType string, payload any) jobs.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return jobs.Job{ID: "job-1", Type: jobType, Payload: data, Attempts: 1}
}

func alertJob(t *testing.T, recordID string) jobs.Job {
	return job(t, jobs.TypeCriticalAlert, jobs.CriticalAlert{
		IdempotencyKey: jobs.CriticalAlertKey("emp-1", "2025-01-01", recordID),
		EmployeeID:     "emp-1",
		RecordID:       recordID,
		Score:          -0.95,
		LocalDay:       "2025-01-01",
	})
}

func TestNotifierDeliversOncePerKey(t *testing.T) {
	r := newRepo(t)
	seedRecord(t, r, "rec-1")
	var posts atomic.Int32
	var gotDelivery, gotSecret atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		posts.Add(1)
		gotDelivery.Store(req.Header.Get("X-Wellcheck-Delivery"))
		gotSecret.Store(req.Header.Get("X-Wellcheck-Secret"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(r, []config.WebhookConfig{{URL: srv.URL, Secret: "s3cret"}})
	j := alertJob(t, "rec-1")
	require.NoError(t, n.Handle(context.Background(), j))
	require.NoError(t, n.Handle(context.Background(), j))

	assert.EqualValues(t, 1, posts.Load())
	assert.Equal(t, "critical-alert:emp-1:2025-01-01:rec-1", gotDelivery.Load())
	assert.Equal(t, "s3cret", gotSecret.Load())

	inbox, err := r.ListNotifications(context.Background(), true, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Employee emp-1 entered critical state", inbox[0].Title)
	assert.Equal(t, jobs.TypeCriticalAlert, inbox[0].Kind)
}

func TestNotifierReleasesKeyWhenDeliveryFails(t *testing.T) {
	r := newRepo(t)
	seedRecord(t, r, "rec-1")
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if posts.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(r, []config.WebhookConfig{{URL: srv.URL}})
	j := alertJob(t, "rec-1")
	err := n.Handle(context.Background(), j)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")

	require.NoError(t, n.Handle(context.Background(), j))
	assert.EqualValues(t, 2, posts.Load())

	inbox, err := r.ListNotifications(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestNotifierRespectsEventFilter(t *testing.T) {
	r := newRepo(t)
	seedRecord(t, r, "rec-1")
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		posts.Add(1)
	}))
	defer srv.Close()

	n := NewNotifier(r, []config.WebhookConfig{{URL: srv.URL, Events: []string{jobs.TypePlanDecided}}})
	require.NoError(t, n.Handle(context.Background(), alertJob(t, "rec-1")))
	assert.Zero(t, posts.Load())

	require.NoError(t, n.Handle(context.Background(), job(t, jobs.TypePlanDecided, jobs.PlanDecided{
		IdempotencyKey: jobs.PlanDecidedKey("plan-1"), PlanID: "plan-1", EmployeeID: "emp-1", Decision: "approved",
	})))
	assert.EqualValues(t, 1, posts.Load())
}

func TestNotifierDropsAlertForMissingRecord(t *testing.T) {
	n := NewNotifier(newRepo(t), nil)
	assert.NoError(t, n.Handle(context.Background(), alertJob(t, "gone")))
}

func TestAnalyzerAppendsOneEventPerCheckIn(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	neg := domain.TierNegative
	for i, s := range []float64{-0.1, -0.3, -0.5} {
		v := s
		require.NoError(t, r.InsertCheckIn(ctx, tx, domain.CheckIn{
			ID:           string(rune('a' + i)),
			EmployeeID:   "emp-1",
			TimestampUTC: time.Date(2025, 1, 5+i, 12, 0, 0, 0, time.UTC),
			LocalDay:     "2025-01-0" + string(rune('5'+i)),
			RawScore:     &v,
			Tier:         &neg,
		}))
	}
	require.NoError(t, tx.Commit())

	a := &Analyzer{DB: r.DB, Repo: r, Events: events.Writer{}}
	j := job(t, jobs.TypeCheckInAnalysis, jobs.CheckInAnalysis{EmployeeID: "emp-1", CheckInID: "c", LocalDay: "2025-01-07", Timezone: "UTC"})
	require.NoError(t, a.Handle(ctx, j))
	require.NoError(t, a.Handle(ctx, j))

	evts, err := r.ListEvents(ctx, repo.EventFilter{Type: events.AnalysisGenerated})
	require.NoError(t, err)
	require.Len(t, evts, 1)

	later := job(t, jobs.TypeCheckInAnalysis, jobs.CheckInAnalysis{EmployeeID: "emp-1", CheckInID: "d", LocalDay: "2025-01-07", Timezone: "UTC"})
	require.NoError(t, a.Handle(ctx, later))
	all, err := r.ListEvents(ctx, repo.EventFilter{Type: events.AnalysisGenerated})
	require.NoError(t, err)
	assert.Len(t, all, 2, "a later check-in on the same day gets its own analysis")

	var payload struct {
		Analysis Analysis `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal([]byte(evts[0].Payload), &payload))
	assert.Equal(t, 3, payload.Analysis.CheckIns)
	assert.Equal(t, "2025-01-01", payload.Analysis.From)
	assert.InDelta(t, -0.3, *payload.Analysis.MeanScore, 1e-9)
}

func TestAnalyzeTrend(t *testing.T) {
	mk := func(s float64) domain.CheckIn { return domain.CheckIn{RawScore: &s} }
	res := Analyze("emp-1", "2025-01-01", "2025-01-07", []domain.CheckIn{mk(0.4), mk(0.2), mk(-0.2), mk(-0.4), {}})
	assert.Equal(t, 5, res.CheckIns)
	assert.Equal(t, 4, res.Scored)
	assert.InDelta(t, -0.6, *res.Trend, 1e-9)
	assert.InDelta(t, -0.4, *res.MinScore, 1e-9)

	empty := Analyze("emp-1", "", "", nil)
	assert.Nil(t, empty.MeanScore)
	assert.Nil(t, empty.Trend)
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate() { c.n++ }

func TestCacheFlusherInvalidates(t *testing.T) {
	c := &countingCache{}
	f := &CacheFlusher{Cache: c}
	require.NoError(t, f.Handle(context.Background(), job(t, jobs.TypeReportCacheFlush, jobs.ReportCacheFlush{ThresholdVersion: 2})))
	assert.Equal(t, 1, c.n)
}

func TestRegisterBindsAllJobTypes(t *testing.T) {
	d := jobs.NewDispatcher(jobs.DefaultPolicy(), nil, nil)
	r := newRepo(t)
	require.NoError(t, Register(d, NewNotifier(r, nil), &Analyzer{DB: r.DB, Repo: r}, &CacheFlusher{Cache: &countingCache{}}))
}
