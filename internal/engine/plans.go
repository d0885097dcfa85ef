package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"wellcheck/internal/domain"
	"wellcheck/internal/events"
	"wellcheck/internal/jobs"
	"wellcheck/internal/repo"
	"wellcheck/internal/window"
)

var priorities = map[string]bool{"low": true, "medium": true, "high": true}

type PlanFields struct {
	Priority      string
	AssignTo      string
	DueDate       string
	ActionNotes   string
	FollowUpNotes string
	ActorID       string
}

func (f PlanFields) validate() error {
	if !priorities[f.Priority] {
		return domain.ValidationError{Field: "priority", Reason: "must be one of low, medium, high"}
	}
	if strings.TrimSpace(f.AssignTo) == "" {
		return domain.ValidationError{Field: "assign_to", Reason: "required"}
	}
	if _, err := time.Parse(window.DateLayout, f.DueDate); err != nil {
		return domain.ValidationError{Field: "due_date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", f.DueDate)}
	}
	if strings.TrimSpace(f.ActionNotes) == "" {
		return domain.ValidationError{Field: "action_notes", Reason: "required"}
	}
	return nil
}

type LifecycleOutcome struct {
	Plan       domain.ActionPlan      `json:"plan"`
	Transition Transition             `json:"transition"`
	Record     domain.CriticalRecord  `json:"record"`
	Watchlist  *domain.WatchlistEntry `json:"watchlist,omitempty"`
}

// SubmitActionPlan creates a pending plan against an open critical record.
// A resolved record or an existing pending/approved plan is a ConflictError.
func (e Engine) SubmitActionPlan(ctx context.Context, recordID string, f PlanFields) (domain.ActionPlan, error) {
	if err := f.validate(); err != nil {
		return domain.ActionPlan{}, err
	}
	if f.ActorID == "" {
		f.ActorID = "system"
	}
	rec, err := e.Repo.GetCriticalRecord(ctx, e.DB, recordID)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	unlock := e.lockEmployee(rec.EmployeeID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	defer tx.Rollback()

	if rec, err = e.Repo.GetCriticalRecord(ctx, tx, recordID); err != nil {
		return domain.ActionPlan{}, err
	}
	if rec.IsResolved {
		return domain.ActionPlan{}, domain.ConflictError{Reason: fmt.Sprintf("critical record %s is resolved", rec.ID)}
	}
	active, err := e.Repo.ActivePlanForRecord(ctx, tx, rec.ID)
	if err == nil {
		return domain.ActionPlan{}, domain.ConflictError{Reason: fmt.Sprintf("critical record %s already has %s plan %s", rec.ID, active.Status, active.ID)}
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.ActionPlan{}, err
	}

	p := domain.ActionPlan{
		ID:               uuid.NewString(),
		CriticalRecordID: rec.ID,
		EmployeeID:       rec.EmployeeID,
		Priority:         f.Priority,
		AssignTo:         f.AssignTo,
		DueDate:          f.DueDate,
		ActionNotes:      f.ActionNotes,
		FollowUpNotes:    f.FollowUpNotes,
		Status:           domain.PlanPending,
		CreatedBy:        f.ActorID,
		CreatedAt:        e.now(),
	}
	if err := e.Repo.InsertActionPlan(ctx, tx, p); err != nil {
		return domain.ActionPlan{}, fmt.Errorf("insert action plan: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Entry{
		Type: events.PlanSubmitted, EntityKind: "action_plan", EntityID: p.ID, EmployeeID: p.EmployeeID, ActorID: f.ActorID,
		Payload: events.EventPayload{"record_id": rec.ID, "priority": p.Priority, "assign_to": p.AssignTo},
	}); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActionPlan{}, err
	}
	return p, nil
}

// DecideActionPlan approves or rejects a pending plan. Approval resolves the
// critical record and starts a watchlist entry using the thresholds active
// now; rejection leaves the record open for a new plan.
func (e Engine) DecideActionPlan(ctx context.Context, planID string, decision domain.PlanStatus, suggestions, actorID string) (LifecycleOutcome, error) {
	if decision != domain.PlanApproved && decision != domain.PlanRejected {
		return LifecycleOutcome{}, domain.ValidationError{Field: "decision", Reason: "must be approved or rejected"}
	}
	if actorID == "" {
		actorID = "system"
	}
	p, err := e.Repo.GetActionPlan(ctx, e.DB, planID)
	if err != nil {
		return LifecycleOutcome{}, err
	}
	unlock := e.lockEmployee(p.EmployeeID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return LifecycleOutcome{}, err
	}
	defer tx.Rollback()

	if p, err = e.Repo.GetActionPlan(ctx, tx, planID); err != nil {
		return LifecycleOutcome{}, err
	}
	if p.Status != domain.PlanPending {
		return LifecycleOutcome{}, domain.ConflictError{Reason: fmt.Sprintf("plan %s is already %s", p.ID, p.Status)}
	}
	rec, err := e.Repo.GetCriticalRecord(ctx, tx, p.CriticalRecordID)
	if err != nil {
		return LifecycleOutcome{}, err
	}

	now := e.now()
	p.Status = decision
	p.DecidedBy = actorID
	p.DecidedAt = &now
	if suggestions != "" {
		p.Suggestions = suggestions
	}
	if err := e.Repo.DecideActionPlan(ctx, tx, p); err != nil {
		return LifecycleOutcome{}, fmt.Errorf("decide action plan: %w", err)
	}
	out := LifecycleOutcome{Plan: p, Transition: TransitionNone, Record: rec}

	evtType := events.PlanRejected
	if decision == domain.PlanApproved {
		evtType = events.PlanApproved
		if rec.IsResolved {
			return LifecycleOutcome{}, domain.ConflictError{Reason: fmt.Sprintf("critical record %s is already resolved", rec.ID)}
		}
		cfg := e.Thresholds.Load()
		if err := e.Repo.ResolveCriticalRecord(ctx, tx, rec.ID, now); err != nil {
			return LifecycleOutcome{}, fmt.Errorf("resolve critical record: %w", err)
		}
		rec.IsResolved = true
		rec.ResolvedAt = &now
		wl := domain.WatchlistEntry{
			EmployeeID:       rec.EmployeeID,
			CriticalRecordID: rec.ID,
			MovedAt:          now,
			TrackUntil:       now.AddDate(0, 0, cfg.WatchlistTrackDays),
		}
		if err := e.Repo.InsertWatchlistEntry(ctx, tx, wl); err != nil {
			return LifecycleOutcome{}, fmt.Errorf("insert watchlist entry: %w", err)
		}
		if err := e.appendEvent(ctx, tx, events.Entry{
			Type: events.WatchlistEntered, EntityKind: "watchlist_entry", EntityID: rec.ID, EmployeeID: rec.EmployeeID, ActorID: actorID,
			Payload: events.EventPayload{"track_until": repo.FormatTime(wl.TrackUntil), "track_days": cfg.WatchlistTrackDays, "threshold_version": cfg.Version},
		}); err != nil {
			return LifecycleOutcome{}, err
		}
		out.Record = rec
		out.Watchlist = &wl
		out.Transition = TransitionCriticalToWatchlist
	}
	if err := e.appendEvent(ctx, tx, events.Entry{
		Type: evtType, EntityKind: "action_plan", EntityID: p.ID, EmployeeID: p.EmployeeID, ActorID: actorID,
		Payload: events.EventPayload{"record_id": rec.ID, "suggestions": p.Suggestions},
	}); err != nil {
		return LifecycleOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return LifecycleOutcome{}, err
	}

	e.observeTransition(out.Transition)
	payload := jobs.PlanDecided{
		IdempotencyKey: jobs.PlanDecidedKey(p.ID),
		PlanID:         p.ID,
		RecordID:       rec.ID,
		EmployeeID:     p.EmployeeID,
		Decision:       string(decision),
		Suggestions:    p.Suggestions,
		DecidedBy:      actorID,
		DecidedAt:      now,
	}
	if out.Watchlist != nil {
		payload.TrackUntil = &out.Watchlist.TrackUntil
	}
	e.enqueue(ctx, jobs.Spec{
		Queue:          jobs.QueueNotifications,
		Type:           jobs.TypePlanDecided,
		Payload:        payload,
		OrderingKey:    p.EmployeeID,
		IdempotencyKey: payload.IdempotencyKey,
	})
	return out, nil
}

// AmendSuggestions replaces the reviewer suggestions of a pending plan.
// Decided plans are terminal.
func (e Engine) AmendSuggestions(ctx context.Context, planID, suggestions, actorID string) (domain.ActionPlan, error) {
	if actorID == "" {
		actorID = "system"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetActionPlan(ctx, tx, planID)
	if err != nil {
		return p, err
	}
	if p.Status != domain.PlanPending {
		return p, domain.ConflictError{Reason: fmt.Sprintf("plan %s is %s; suggestions are frozen", p.ID, p.Status)}
	}
	if err := e.Repo.UpdatePlanSuggestions(ctx, tx, p.ID, suggestions); err != nil {
		return p, err
	}
	p.Suggestions = suggestions
	if err := e.appendEvent(ctx, tx, events.Entry{
		Type: events.PlanSuggestionsEdited, EntityKind: "action_plan", EntityID: p.ID, EmployeeID: p.EmployeeID, ActorID: actorID,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

func (e Engine) GetActionPlan(ctx context.Context, id string) (domain.ActionPlan, error) {
	return e.Repo.GetActionPlan(ctx, e.DB, id)
}

// ListActionPlans lists the plans of one critical record, newest first.
func (e Engine) ListActionPlans(ctx context.Context, recordID string) ([]domain.ActionPlan, error) {
	return e.Repo.ListActionPlans(ctx, repo.PlanFilter{CriticalRecordID: recordID})
}
