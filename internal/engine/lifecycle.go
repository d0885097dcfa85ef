package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"wellcheck/internal/classify"
	"wellcheck/internal/domain"
	"wellcheck/internal/events"
	"wellcheck/internal/jobs"
	"wellcheck/internal/repo"
	"wellcheck/internal/thresholds"
	"wellcheck/internal/window"
)

// MaxClockSkew is how far ahead of the engine clock a check-in timestamp may be.
const MaxClockSkew = 5 * time.Minute

type Transition string

const (
	TransitionNone                Transition = "none"
	TransitionNormalToCritical    Transition = "normal_to_critical"
	TransitionCriticalNoop        Transition = "critical_noop"
	TransitionWatchlistToCritical Transition = "watchlist_to_critical"
	TransitionWatchlistExpired    Transition = "watchlist_expired"
	TransitionCriticalToWatchlist Transition = "critical_to_watchlist"
)

type CheckInInput struct {
	EmployeeID   string
	DepartmentID string
	// RawScore nil means the employee gave no score; no tier is assigned.
	RawScore     *float64
	EmotionLabel string
	// Timestamp defaults to the engine clock and may not be later than it
	// by more than MaxClockSkew.
	Timestamp time.Time
	// Timezone defaults to the engine timezone.
	Timezone string
}

type TierOutcome struct {
	CheckIn    domain.CheckIn         `json:"check_in"`
	Tier       domain.Tier            `json:"tier,omitempty"`
	HasTier    bool                   `json:"has_tier"`
	LocalDay   string                 `json:"local_day"`
	Transition Transition             `json:"transition"`
	State      domain.EmployeeState   `json:"state"`
	Record     *domain.CriticalRecord `json:"record,omitempty"`
	// Watchlist is the entry removed by this check-in, if any.
	Watchlist *domain.WatchlistEntry `json:"watchlist,omitempty"`
}

// RecordCheckIn stores a check-in, classifies it under the active thresholds
// and applies the resulting lifecycle transition in one transaction.
// Notification and analysis jobs are enqueued only after commit.
func (e Engine) RecordCheckIn(ctx context.Context, in CheckInInput) (TierOutcome, error) {
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	if in.EmployeeID == "" {
		return TierOutcome{}, domain.ValidationError{Field: "employee_id", Reason: "required"}
	}
	if in.RawScore != nil {
		s := *in.RawScore
		if math.IsNaN(s) || s < thresholds.AxisMin || s > thresholds.AxisMax {
			return TierOutcome{}, domain.ValidationError{Field: "raw_score", Reason: fmt.Sprintf("must be within [%.1f, %.1f]", thresholds.AxisMin, thresholds.AxisMax)}
		}
	}
	tz := in.Timezone
	if tz == "" {
		tz = e.Timezone
	}
	now := e.now()
	at := in.Timestamp
	if at.IsZero() {
		at = now
	}
	at = at.UTC()
	if at.After(now.Add(MaxClockSkew)) {
		return TierOutcome{}, domain.ValidationError{Field: "timestamp", Reason: "must not be in the future"}
	}
	localDay, err := window.LocalDay(at, tz)
	if err != nil {
		return TierOutcome{}, err
	}

	cfg := e.Thresholds.Load()
	tier, hasTier := classify.Classify(in.RawScore, cfg)
	c := domain.CheckIn{
		ID:           uuid.NewString(),
		EmployeeID:   in.EmployeeID,
		DepartmentID: in.DepartmentID,
		TimestampUTC: at,
		LocalDay:     localDay,
		RawScore:     in.RawScore,
		EmotionLabel: in.EmotionLabel,
	}
	if hasTier {
		t := tier
		c.Tier = &t
		if cfg.Version > 0 {
			v := cfg.Version
			c.ThresholdVersion = &v
		}
	}
	out := TierOutcome{
		CheckIn:    c,
		Tier:       tier,
		HasTier:    hasTier,
		LocalDay:   localDay,
		Transition: TransitionNone,
		State:      domain.StateNormal,
	}

	unlock := e.lockEmployee(in.EmployeeID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertCheckIn(ctx, tx, c); err != nil {
		return out, fmt.Errorf("insert check-in: %w", err)
	}
	payload := events.EventPayload{"local_day": localDay}
	if hasTier {
		payload["tier"] = string(tier)
		payload["threshold_version"] = cfg.Version
	}
	if err := e.appendEvent(ctx, tx, events.Entry{
		Type: events.CheckInRecorded, EntityKind: "check_in", EntityID: c.ID, EmployeeID: c.EmployeeID, Payload: payload,
	}); err != nil {
		return out, err
	}

	switch {
	case !hasTier:
		if err := e.fillState(ctx, tx, &out, now); err != nil {
			return out, err
		}
	case tier == domain.TierCritical:
		if err := e.applyCritical(ctx, tx, &out, at, now); err != nil {
			return out, err
		}
	default:
		if err := e.applyNonCritical(ctx, tx, &out, now); err != nil {
			return out, err
		}
	}

	if err := tx.Commit(); err != nil {
		return out, err
	}

	e.observeCheckIn(string(tier))
	e.observeTransition(out.Transition)
	if out.Transition == TransitionNormalToCritical || out.Transition == TransitionWatchlistToCritical {
		key := jobs.CriticalAlertKey(c.EmployeeID, localDay, out.Record.ID)
		e.enqueue(ctx, jobs.Spec{
			Queue: jobs.QueueNotifications,
			Type:  jobs.TypeCriticalAlert,
			Payload: jobs.CriticalAlert{
				IdempotencyKey: key,
				EmployeeID:     c.EmployeeID,
				DepartmentID:   c.DepartmentID,
				RecordID:       out.Record.ID,
				Score:          out.Record.EmotionScoreAtTrigger,
				LocalDay:       localDay,
				Reopened:       out.Transition == TransitionWatchlistToCritical,
				OccurredAt:     at,
			},
			OrderingKey:    c.EmployeeID,
			IdempotencyKey: key,
		})
	}
	if hasTier {
		e.enqueue(ctx, jobs.Spec{
			Queue:          jobs.QueueAnalysis,
			Type:           jobs.TypeCheckInAnalysis,
			Payload:        jobs.CheckInAnalysis{EmployeeID: c.EmployeeID, CheckInID: c.ID, LocalDay: localDay, Timezone: tz},
			OrderingKey:    c.EmployeeID,
			IdempotencyKey: jobs.CheckInAnalysisKey(c.ID),
		})
	}
	return out, nil
}

// applyCritical stamps records with the check-in time at; watchlist expiry is
// judged against the engine clock now.
func (e Engine) applyCritical(ctx context.Context, tx *sql.Tx, out *TierOutcome, at, now time.Time) error {
	c := out.CheckIn
	open, err := e.Repo.OpenCriticalRecord(ctx, tx, c.EmployeeID)
	switch {
	case err == nil:
		if err := e.Repo.TouchCriticalRecord(ctx, tx, open.ID, at); err != nil {
			return fmt.Errorf("touch critical record: %w", err)
		}
		if at.After(open.LastCriticalAt) {
			open.LastCriticalAt = at
		}
		if err := e.appendEvent(ctx, tx, events.Entry{
			Type: events.CriticalRepeated, EntityKind: "critical_record", EntityID: open.ID, EmployeeID: c.EmployeeID,
			Payload: events.EventPayload{"score": *c.RawScore, "check_in_id": c.ID},
		}); err != nil {
			return err
		}
		out.Transition = TransitionCriticalNoop
		out.State = domain.StateCritical
		out.Record = &open
		return nil
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}

	out.Transition = TransitionNormalToCritical
	wl, err := e.Repo.GetWatchlistEntry(ctx, tx, c.EmployeeID)
	switch {
	case err == nil:
		if err := e.Repo.DeleteWatchlistEntry(ctx, tx, c.EmployeeID); err != nil {
			return fmt.Errorf("delete watchlist entry: %w", err)
		}
		evt := events.WatchlistCancelled
		if wl.Expired(now) {
			evt = events.WatchlistExpired
		} else {
			out.Transition = TransitionWatchlistToCritical
		}
		if err := e.appendEvent(ctx, tx, events.Entry{
			Type: evt, EntityKind: "watchlist_entry", EntityID: wl.CriticalRecordID, EmployeeID: c.EmployeeID,
			Payload: events.EventPayload{"track_until": repo.FormatTime(wl.TrackUntil), "check_in_id": c.ID},
		}); err != nil {
			return err
		}
		out.Watchlist = &wl
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}

	rec := domain.CriticalRecord{
		ID:                    uuid.NewString(),
		EmployeeID:            c.EmployeeID,
		DepartmentID:          c.DepartmentID,
		EmotionScoreAtTrigger: *c.RawScore,
		CreatedAt:             at,
		LastCriticalAt:        at,
	}
	if err := e.Repo.InsertCriticalRecord(ctx, tx, rec); err != nil {
		return fmt.Errorf("insert critical record: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Entry{
		Type: events.CriticalOpened, EntityKind: "critical_record", EntityID: rec.ID, EmployeeID: rec.EmployeeID,
		Payload: events.EventPayload{"score": rec.EmotionScoreAtTrigger, "check_in_id": c.ID, "transition": string(out.Transition)},
	}); err != nil {
		return err
	}
	out.State = domain.StateCritical
	out.Record = &rec
	return nil
}

// applyNonCritical folds a due watchlist expiry into the write.
func (e Engine) applyNonCritical(ctx context.Context, tx *sql.Tx, out *TierOutcome, now time.Time) error {
	id := out.CheckIn.EmployeeID
	wl, err := e.Repo.GetWatchlistEntry(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return e.fillState(ctx, tx, out, now)
	}
	if err != nil {
		return err
	}
	if !wl.Expired(now) {
		out.State = domain.StateWatchlist
		return nil
	}
	if err := e.expireWatchlist(ctx, tx, wl); err != nil {
		return err
	}
	out.Transition = TransitionWatchlistExpired
	out.State = domain.StateNormal
	out.Watchlist = &wl
	return nil
}

func (e Engine) expireWatchlist(ctx context.Context, tx *sql.Tx, wl domain.WatchlistEntry) error {
	if err := e.Repo.DeleteWatchlistEntry(ctx, tx, wl.EmployeeID); err != nil {
		return fmt.Errorf("delete watchlist entry: %w", err)
	}
	return e.appendEvent(ctx, tx, events.Entry{
		Type: events.WatchlistExpired, EntityKind: "watchlist_entry", EntityID: wl.CriticalRecordID, EmployeeID: wl.EmployeeID,
		Payload: events.EventPayload{"track_until": repo.FormatTime(wl.TrackUntil)},
	})
}

func (e Engine) fillState(ctx context.Context, q repo.Querier, out *TierOutcome, now time.Time) error {
	st, err := e.employeeState(ctx, q, out.CheckIn.EmployeeID, now)
	if err != nil {
		return err
	}
	out.State = st.State
	out.Record = st.Record
	return nil
}

type EmployeeStatus struct {
	EmployeeID string                 `json:"employee_id"`
	State      domain.EmployeeState   `json:"state"`
	Record     *domain.CriticalRecord `json:"record,omitempty"`
	Watchlist  *domain.WatchlistEntry `json:"watchlist,omitempty"`
}

// EmployeeState reads the current lifecycle state without taking the
// employee lock. A watchlist entry past its TrackUntil reads as Normal even
// before the sweep removes it. A zero now means the engine clock.
func (e Engine) EmployeeState(ctx context.Context, employeeID string, now time.Time) (EmployeeStatus, error) {
	if now.IsZero() {
		now = e.now()
	}
	return e.employeeState(ctx, e.DB, employeeID, now)
}

func (e Engine) employeeState(ctx context.Context, q repo.Querier, employeeID string, now time.Time) (EmployeeStatus, error) {
	st := EmployeeStatus{EmployeeID: employeeID, State: domain.StateNormal}
	rec, err := e.Repo.OpenCriticalRecord(ctx, q, employeeID)
	if err == nil {
		st.State = domain.StateCritical
		st.Record = &rec
		return st, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return st, err
	}
	wl, err := e.Repo.GetWatchlistEntry(ctx, q, employeeID)
	if errors.Is(err, repo.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if !wl.Expired(now) {
		st.State = domain.StateWatchlist
		st.Watchlist = &wl
	}
	return st, nil
}

// SweepWatchlist removes every watchlist entry whose tracking period is over
// and returns how many were removed. Each entry is re-checked under its
// employee lock, so a concurrent reopen wins.
func (e Engine) SweepWatchlist(ctx context.Context) (int, error) {
	now := e.now()
	due, err := e.Repo.ListWatchlist(ctx, &now)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, candidate := range due {
		ok, err := e.expireOne(ctx, candidate.EmployeeID, now)
		if err != nil {
			return removed, fmt.Errorf("expire watchlist for %s: %w", candidate.EmployeeID, err)
		}
		if ok {
			removed++
			e.observeTransition(TransitionWatchlistExpired)
		}
	}
	if removed > 0 {
		logger.InfoContext(ctx, "watchlist sweep", "expired", removed)
	}
	return removed, nil
}

func (e Engine) expireOne(ctx context.Context, employeeID string, now time.Time) (bool, error) {
	unlock := e.lockEmployee(employeeID)
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	wl, err := e.Repo.GetWatchlistEntry(ctx, tx, employeeID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !wl.Expired(now) {
		return false, nil
	}
	if err := e.expireWatchlist(ctx, tx, wl); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ListWatchlist returns entries still being tracked at now.
func (e Engine) ListWatchlist(ctx context.Context, now time.Time) ([]domain.WatchlistEntry, error) {
	if now.IsZero() {
		now = e.now()
	}
	all, err := e.Repo.ListWatchlist(ctx, nil)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, w := range all {
		if !w.Expired(now) {
			active = append(active, w)
		}
	}
	return active, nil
}

func (e Engine) ListCriticalRecords(ctx context.Context, f repo.CriticalFilter) ([]domain.CriticalRecord, error) {
	return e.Repo.ListCriticalRecords(ctx, f)
}

func (e Engine) GetCriticalRecord(ctx context.Context, id string) (domain.CriticalRecord, error) {
	return e.Repo.GetCriticalRecord(ctx, e.DB, id)
}
