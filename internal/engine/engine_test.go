package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wellcheck/internal/db"
	"wellcheck/internal/domain"
	"wellcheck/internal/engine"
	"wellcheck/internal/jobs"
	"wellcheck/internal/migrate"
	"wellcheck/internal/repo"
	"wellcheck/internal/thresholds"
)

type recordingQueue struct {
	mu    sync.Mutex
	specs []jobs.Spec
	err   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, s jobs.Spec) (jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return jobs.Job{}, q.err
	}
	q.specs = append(q.specs, s)
	return jobs.Job{ID: "job", Queue: s.Queue, Type: s.Type}, nil
}

func (q *recordingQueue) ofType(jobType string) []jobs.Spec {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []jobs.Spec
	for _, s := range q.specs {
		if s.Type == jobType {
			out = append(out, s)
		}
	}
	return out
}

type testEnv struct {
	Engine engine.Engine
	Queue  *recordingQueue
	Ctx    context.Context
	now    time.Time
}

func (env *testEnv) setNow(t time.Time) { env.now = t }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{Queue: &recordingQueue{}, Ctx: ctx, now: day(2025, 1, 1)}
	eng := engine.New(conn, "UTC")
	eng.Now = func() time.Time { return env.now }
	eng.Jobs = env.Queue
	if _, err := eng.LoadThresholds(ctx, thresholds.Default()); err != nil {
		t.Fatalf("seed thresholds: %v", err)
	}
	env.Engine = eng
	return env
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func score(v float64) *float64 { return &v }

// checkIn records a check-in as it happens, moving the clock forward to at.
func (env *testEnv) checkIn(t *testing.T, employeeID string, s *float64, at time.Time) engine.TierOutcome {
	t.Helper()
	if at.After(env.now) {
		env.setNow(at)
	}
	out, err := env.Engine.RecordCheckIn(env.Ctx, engine.CheckInInput{
		EmployeeID:   employeeID,
		DepartmentID: "ops",
		RawScore:     s,
		Timestamp:    at,
	})
	if err != nil {
		t.Fatalf("record check-in: %v", err)
	}
	return out
}

func (env *testEnv) approveOpenRecord(t *testing.T, employeeID string) engine.LifecycleOutcome {
	t.Helper()
	st, err := env.Engine.EmployeeState(env.Ctx, employeeID, time.Time{})
	if err != nil || st.Record == nil {
		t.Fatalf("expected open record: %v", err)
	}
	plan, err := env.Engine.SubmitActionPlan(env.Ctx, st.Record.ID, validPlan())
	if err != nil {
		t.Fatalf("submit plan: %v", err)
	}
	out, err := env.Engine.DecideActionPlan(env.Ctx, plan.ID, domain.PlanApproved, "check in weekly", "lead")
	if err != nil {
		t.Fatalf("approve plan: %v", err)
	}
	return out
}

func validPlan() engine.PlanFields {
	return engine.PlanFields{
		Priority:    "high",
		AssignTo:    "hr-partner",
		DueDate:     "2025-01-10",
		ActionNotes: "schedule a 1:1",
		ActorID:     "responder",
	}
}

func TestCriticalCheckInOpensRecordAndAlertsOnce(t *testing.T) {
	env := newTestEnv(t)
	out := env.checkIn(t, "emp-1", score(-0.95), day(2025, 1, 1).Add(9*time.Hour))
	if out.Tier != domain.TierCritical || !out.HasTier {
		t.Fatalf("expected critical tier, got %q", out.Tier)
	}
	if out.Transition != engine.TransitionNormalToCritical {
		t.Fatalf("expected normal_to_critical, got %s", out.Transition)
	}
	if out.Record == nil || out.Record.EmotionScoreAtTrigger != -0.95 {
		t.Fatalf("expected record with trigger score, got %+v", out.Record)
	}
	if out.CheckIn.ThresholdVersion == nil || *out.CheckIn.ThresholdVersion != 1 {
		t.Fatalf("check-in should carry threshold version 1")
	}

	again := env.checkIn(t, "emp-1", score(-0.9), day(2025, 1, 1).Add(15*time.Hour))
	if again.Transition != engine.TransitionCriticalNoop {
		t.Fatalf("expected critical_noop, got %s", again.Transition)
	}
	if again.Record.ID != out.Record.ID {
		t.Fatalf("repeat critical must keep the open record")
	}
	if !again.Record.CreatedAt.Equal(out.Record.CreatedAt) {
		t.Fatalf("createdAt must not move")
	}
	if !again.Record.LastCriticalAt.After(out.Record.LastCriticalAt) {
		t.Fatalf("lastCriticalAt should advance")
	}

	records, err := env.Engine.ListCriticalRecords(env.Ctx, repo.CriticalFilter{EmployeeID: "emp-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	alerts := env.Queue.ofType(jobs.TypeCriticalAlert)
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	if alerts[0].IdempotencyKey != "critical-alert:emp-1:2025-01-01:"+out.Record.ID || alerts[0].OrderingKey != "emp-1" {
		t.Fatalf("unexpected alert keys: %+v", alerts[0])
	}
}

func TestMissingScoreTriggersNothing(t *testing.T) {
	env := newTestEnv(t)
	out := env.checkIn(t, "emp-1", nil, time.Time{})
	if out.HasTier || out.CheckIn.Tier != nil {
		t.Fatalf("missing score must not be classified")
	}
	if out.Transition != engine.TransitionNone || out.State != domain.StateNormal {
		t.Fatalf("unexpected transition %s state %s", out.Transition, out.State)
	}
	if len(env.Queue.specs) != 0 {
		t.Fatalf("no jobs expected, got %d", len(env.Queue.specs))
	}
}

func TestOutOfAxisScoreIsRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RecordCheckIn(env.Ctx, engine.CheckInInput{EmployeeID: "emp-1", RawScore: score(-1.5)})
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "raw_score" {
		t.Fatalf("expected raw_score validation error, got %v", err)
	}
	_, err = env.Engine.RecordCheckIn(env.Ctx, engine.CheckInInput{EmployeeID: "emp-1", RawScore: score(0), Timezone: "Mars/Olympus"})
	if !errors.As(err, &verr) || verr.Field != "timezone" {
		t.Fatalf("expected timezone validation error, got %v", err)
	}
}

func TestApprovedPlanStartsWatchlistThatExpires(t *testing.T) {
	env := newTestEnv(t)
	env.checkIn(t, "emp-1", score(-0.95), day(2025, 1, 1))
	out := env.approveOpenRecord(t, "emp-1")
	if out.Transition != engine.TransitionCriticalToWatchlist {
		t.Fatalf("expected critical_to_watchlist, got %s", out.Transition)
	}
	if !out.Record.IsResolved || out.Record.ResolvedAt == nil {
		t.Fatalf("record should be resolved")
	}
	if out.Watchlist == nil || !out.Watchlist.TrackUntil.Equal(day(2025, 1, 15)) {
		t.Fatalf("expected trackUntil 2025-01-15, got %+v", out.Watchlist)
	}
	if got := env.Queue.ofType(jobs.TypePlanDecided); len(got) != 1 {
		t.Fatalf("expected plan-decided job, got %d", len(got))
	}

	st, err := env.Engine.EmployeeState(env.Ctx, "emp-1", day(2025, 1, 14))
	if err != nil || st.State != domain.StateWatchlist {
		t.Fatalf("expected watchlist on day 14: %v %s", err, st.State)
	}
	st, err = env.Engine.EmployeeState(env.Ctx, "emp-1", day(2025, 1, 15))
	if err != nil || st.State != domain.StateNormal {
		t.Fatalf("expected normal on 2025-01-15: %v %s", err, st.State)
	}

	env.setNow(day(2025, 1, 15))
	removed, err := env.Engine.SweepWatchlist(env.Ctx)
	if err != nil || removed != 1 {
		t.Fatalf("sweep removed %d: %v", removed, err)
	}
	list, err := env.Engine.Repo.ListWatchlist(env.Ctx, nil)
	if err != nil || len(list) != 0 {
		t.Fatalf("watchlist entry should be gone: %v %d", err, len(list))
	}
}

func TestCriticalOnDay13CancelsExpiry(t *testing.T) {
	env := newTestEnv(t)
	first := env.checkIn(t, "emp-1", score(-0.95), day(2025, 1, 1))
	env.approveOpenRecord(t, "emp-1")

	out := env.checkIn(t, "emp-1", score(-0.85), day(2025, 1, 14).Add(23*time.Hour))
	if out.Transition != engine.TransitionWatchlistToCritical {
		t.Fatalf("expected watchlist_to_critical, got %s", out.Transition)
	}
	if out.Record.ID == first.Record.ID {
		t.Fatalf("reopen must create a new record")
	}
	if out.Watchlist == nil {
		t.Fatalf("outcome should report the removed watchlist entry")
	}

	env.setNow(day(2025, 1, 20))
	if removed, err := env.Engine.SweepWatchlist(env.Ctx); err != nil || removed != 0 {
		t.Fatalf("nothing to sweep after reopen: %d %v", removed, err)
	}
	st, err := env.Engine.EmployeeState(env.Ctx, "emp-1", time.Time{})
	if err != nil || st.State != domain.StateCritical {
		t.Fatalf("expected critical, got %s: %v", st.State, err)
	}
	alerts := env.Queue.ofType(jobs.TypeCriticalAlert)
	if len(alerts) != 2 {
		t.Fatalf("expected an alert per opened record, got %d", len(alerts))
	}
}

func TestNonCriticalCheckInFoldsDueExpiry(t *testing.T) {
	env := newTestEnv(t)
	env.checkIn(t, "emp-1", score(-0.95), day(2025, 1, 1))
	env.approveOpenRecord(t, "emp-1")

	out := env.checkIn(t, "emp-1", score(0.5), day(2025, 1, 16))
	if out.Transition != engine.TransitionWatchlistExpired || out.State != domain.StateNormal {
		t.Fatalf("expected watchlist_expired, got %s/%s", out.Transition, out.State)
	}
}

func TestFutureCheckInCannotExpireWatchlist(t *testing.T) {
	env := newTestEnv(t)
	env.checkIn(t, "emp-1", score(-0.95), day(2025, 1, 1))
	env.approveOpenRecord(t, "emp-1")
	env.setNow(day(2025, 1, 2))

	_, err := env.Engine.RecordCheckIn(env.Ctx, engine.CheckInInput{EmployeeID: "emp-1", RawScore: score(0.5), Timestamp: day(2025, 1, 20)})
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "timestamp" {
		t.Fatalf("expected timestamp validation error, got %v", err)
	}
	st, err := env.Engine.EmployeeState(env.Ctx, "emp-1", time.Time{})
	if err != nil || st.State != domain.StateWatchlist || st.Watchlist == nil {
		t.Fatalf("watchlist entry must survive until trackUntil: %v %s", err, st.State)
	}

	out, err := env.Engine.RecordCheckIn(env.Ctx, engine.CheckInInput{
		EmployeeID: "emp-1", RawScore: score(-0.9), Timestamp: day(2025, 1, 2).Add(engine.MaxClockSkew),
	})
	if err != nil {
		t.Fatalf("check-in within clock skew: %v", err)
	}
	if out.Transition != engine.TransitionWatchlistToCritical {
		t.Fatalf("expected watchlist_to_critical, got %s", out.Transition)
	}
}

func TestBackdatedCheckInSeesExpiredWatchlist(t *testing.T) {
	env := newTestEnv(t)
	env.checkIn(t, "emp-1", score(-0.95), day(2025, 1, 1))
	env.approveOpenRecord(t, "emp-1")
	env.setNow(day(2025, 1, 16))

	out := env.checkIn(t, "emp-1", score(0.4), day(2025, 1, 10))
	if out.Transition != engine.TransitionWatchlistExpired || out.State != domain.StateNormal {
		t.Fatalf("expiry follows the clock, not the check-in stamp: %s/%s", out.Transition, out.State)
	}
}

func TestRejectedPlanKeepsRecordOpen(t *testing.T) {
	env := newTestEnv(t)
	ci := env.checkIn(t, "emp-1", score(-0.95), time.Time{})
	plan, err := env.Engine.SubmitActionPlan(env.Ctx, ci.Record.ID, validPlan())
	if err != nil {
		t.Fatal(err)
	}
	out, err := env.Engine.DecideActionPlan(env.Ctx, plan.ID, domain.PlanRejected, "too vague", "lead")
	if err != nil {
		t.Fatal(err)
	}
	if out.Transition != engine.TransitionNone || out.Watchlist != nil || out.Record.IsResolved {
		t.Fatalf("rejection must not resolve: %+v", out)
	}
	if out.Plan.Suggestions != "too vague" {
		t.Fatalf("suggestions not stored")
	}
	st, _ := env.Engine.EmployeeState(env.Ctx, "emp-1", time.Time{})
	if st.State != domain.StateCritical {
		t.Fatalf("expected critical after rejection, got %s", st.State)
	}
	if _, err := env.Engine.SubmitActionPlan(env.Ctx, ci.Record.ID, validPlan()); err != nil {
		t.Fatalf("resubmission should be allowed: %v", err)
	}
	plans, err := env.Engine.ListActionPlans(env.Ctx, ci.Record.ID)
	if err != nil || len(plans) != 2 {
		t.Fatalf("expected two plans: %v %d", err, len(plans))
	}
}

func TestSecondActivePlanConflicts(t *testing.T) {
	env := newTestEnv(t)
	ci := env.checkIn(t, "emp-1", score(-0.95), time.Time{})
	if _, err := env.Engine.SubmitActionPlan(env.Ctx, ci.Record.ID, validPlan()); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.SubmitActionPlan(env.Ctx, ci.Record.ID, validPlan())
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDecidedPlanIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ci := env.checkIn(t, "emp-1", score(-0.95), time.Time{})
	plan, err := env.Engine.SubmitActionPlan(env.Ctx, ci.Record.ID, validPlan())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AmendSuggestions(env.Ctx, plan.ID, "add a buddy", "lead"); err != nil {
		t.Fatalf("amend pending plan: %v", err)
	}
	if _, err := env.Engine.DecideActionPlan(env.Ctx, plan.ID, domain.PlanApproved, "", "lead"); err != nil {
		t.Fatal(err)
	}
	var conflict domain.ConflictError
	if _, err := env.Engine.DecideActionPlan(env.Ctx, plan.ID, domain.PlanRejected, "", "lead"); !errors.As(err, &conflict) {
		t.Fatalf("expected conflict on re-decision, got %v", err)
	}
	if _, err := env.Engine.AmendSuggestions(env.Ctx, plan.ID, "late", "lead"); !errors.As(err, &conflict) {
		t.Fatalf("expected conflict on amend after approval, got %v", err)
	}
	if _, err := env.Engine.SubmitActionPlan(env.Ctx, ci.Record.ID, validPlan()); !errors.As(err, &conflict) {
		t.Fatalf("expected conflict on resolved record, got %v", err)
	}
	got, err := env.Engine.GetActionPlan(env.Ctx, plan.ID)
	if err != nil || got.Suggestions != "add a buddy" {
		t.Fatalf("approval without suggestions keeps amended text: %v %q", err, got.Suggestions)
	}
}

func TestPlanValidation(t *testing.T) {
	env := newTestEnv(t)
	ci := env.checkIn(t, "emp-1", score(-0.95), time.Time{})
	cases := map[string]func(f *engine.PlanFields){
		"priority":     func(f *engine.PlanFields) { f.Priority = "urgent" },
		"assign_to":    func(f *engine.PlanFields) { f.AssignTo = " " },
		"due_date":     func(f *engine.PlanFields) { f.DueDate = "10/01/2025" },
		"action_notes": func(f *engine.PlanFields) { f.ActionNotes = "" },
	}
	for field, mutate := range cases {
		f := validPlan()
		mutate(&f)
		_, err := env.Engine.SubmitActionPlan(env.Ctx, ci.Record.ID, f)
		var verr domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != field {
			t.Fatalf("%s: expected validation error, got %v", field, err)
		}
	}
	if _, err := env.Engine.DecideActionPlan(env.Ctx, "nope", "maybe", "", ""); err == nil {
		t.Fatalf("expected invalid decision error")
	}
	if _, err := env.Engine.SubmitActionPlan(env.Ctx, "missing", validPlan()); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentCriticalCheckInsOpenOneRecord(t *testing.T) {
	env := newTestEnv(t)
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.RecordCheckIn(env.Ctx, engine.CheckInInput{EmployeeID: "emp-1", RawScore: score(-0.99)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("check-in: %v", err)
		}
	}
	open, err := env.Engine.ListCriticalRecords(env.Ctx, repo.CriticalFilter{EmployeeID: "emp-1", OpenOnly: true})
	if err != nil || len(open) != 1 {
		t.Fatalf("expected exactly one open record: %v %d", err, len(open))
	}
	if n := len(env.Queue.ofType(jobs.TypeCriticalAlert)); n != 1 {
		t.Fatalf("expected one alert, got %d", n)
	}
}

func TestThresholdChangeIsNotRetroactive(t *testing.T) {
	env := newTestEnv(t)
	before := env.checkIn(t, "emp-1", score(-0.5), day(2025, 1, 1).Add(time.Hour))
	if before.Tier != domain.TierNegative {
		t.Fatalf("expected negative under defaults, got %s", before.Tier)
	}
	cfg := thresholds.Default()
	cfg.Critical = domain.Range{Min: -1, Max: -0.4}
	cfg.Negative = domain.Range{Min: -0.4, Max: -0.2}
	updated, err := env.Engine.UpdateThresholds(env.Ctx, engine.ThresholdUpdate{Config: cfg, ExpectedVersion: 1, ActorID: "admin"})
	if err != nil {
		t.Fatalf("update thresholds: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if got := env.Queue.ofType(jobs.TypeReportCacheFlush); len(got) != 1 {
		t.Fatalf("expected report-cache job, got %d", len(got))
	}

	after := env.checkIn(t, "emp-2", score(-0.5), day(2025, 1, 1).Add(2*time.Hour))
	if after.Tier != domain.TierCritical || *after.CheckIn.ThresholdVersion != 2 {
		t.Fatalf("new check-in should use version 2")
	}
	stored, err := env.Engine.Repo.CheckInsBetween(env.Ctx, env.Engine.DB, "emp-1", day(2025, 1, 1), day(2025, 1, 2))
	if err != nil || len(stored) != 1 {
		t.Fatalf("load stored check-in: %v", err)
	}
	if *stored[0].Tier != domain.TierNegative || *stored[0].ThresholdVersion != 1 {
		t.Fatalf("historical check-in was reclassified")
	}
}

func TestRejectedThresholdUpdateKeepsPriorConfig(t *testing.T) {
	env := newTestEnv(t)
	cfg := thresholds.Default()
	cfg.Neutral = domain.Range{Min: -0.1, Max: 0.2}
	_, err := env.Engine.UpdateThresholds(env.Ctx, engine.ThresholdUpdate{Config: cfg})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if v := env.Engine.ActiveThresholds().Version; v != 1 {
		t.Fatalf("active version changed to %d", v)
	}
	_, err = env.Engine.UpdateThresholds(env.Ctx, engine.ThresholdUpdate{Config: thresholds.Default(), ExpectedVersion: 7})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}
	history, err := env.Engine.ThresholdHistory(env.Ctx, 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected only the seed version: %v %d", err, len(history))
	}
}

func TestWatchlistDaysComeFromConfigAtResolution(t *testing.T) {
	env := newTestEnv(t)
	env.checkIn(t, "emp-1", score(-0.95), day(2025, 1, 1))
	cfg := thresholds.Default()
	cfg.WatchlistTrackDays = 3
	if _, err := env.Engine.UpdateThresholds(env.Ctx, engine.ThresholdUpdate{Config: cfg}); err != nil {
		t.Fatal(err)
	}
	out := env.approveOpenRecord(t, "emp-1")
	if !out.Watchlist.TrackUntil.Equal(day(2025, 1, 4)) {
		t.Fatalf("expected 3-day tracking, got %s", out.Watchlist.TrackUntil)
	}
}

func TestEnqueueFailureDoesNotUndoCheckIn(t *testing.T) {
	env := newTestEnv(t)
	env.Queue.err = errors.New("queue stopped")
	out := env.checkIn(t, "emp-1", score(-0.95), time.Time{})
	if out.Record == nil {
		t.Fatalf("record should be created")
	}
	rec, err := env.Engine.GetCriticalRecord(env.Ctx, out.Record.ID)
	if err != nil || rec.IsResolved {
		t.Fatalf("record must stay committed: %v", err)
	}
}

func TestReopenedRecordAlertsThroughRealQueue(t *testing.T) {
	env := newTestEnv(t)
	d := jobs.NewDispatcher(jobs.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, nil, nil)
	var mu sync.Mutex
	alerted := map[string]int{}
	if err := d.Handle(jobs.QueueNotifications, jobs.TypeCriticalAlert, jobs.HandlerFunc(func(ctx context.Context, j jobs.Job) error {
		var p jobs.CriticalAlert
		if err := j.Decode(&p); err != nil {
			return err
		}
		mu.Lock()
		alerted[p.RecordID]++
		mu.Unlock()
		return nil
	})); err != nil {
		t.Fatal(err)
	}
	d.Start(env.Ctx)
	t.Cleanup(func() { d.Stop(context.Background()) })
	env.Engine.Jobs = d

	first := env.checkIn(t, "emp-1", score(-0.95), day(2025, 1, 1).Add(8*time.Hour))
	env.checkIn(t, "emp-1", score(-0.9), day(2025, 1, 1).Add(9*time.Hour))
	env.approveOpenRecord(t, "emp-1")
	reopened := env.checkIn(t, "emp-1", score(-0.92), day(2025, 1, 1).Add(10*time.Hour))
	if reopened.Transition != engine.TransitionWatchlistToCritical || reopened.Record.ID == first.Record.ID {
		t.Fatalf("expected a new record from watchlist, got %s", reopened.Transition)
	}

	ctx, cancel := context.WithTimeout(env.Ctx, 5*time.Second)
	defer cancel()
	if err := d.WaitIdle(ctx); err != nil {
		t.Fatalf("wait idle: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if alerted[first.Record.ID] != 1 {
		t.Fatalf("expected exactly one alert for the first record, got %d", alerted[first.Record.ID])
	}
	if alerted[reopened.Record.ID] != 1 {
		t.Fatalf("expected an alert for the reopened record, got %d", alerted[reopened.Record.ID])
	}
}
