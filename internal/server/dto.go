package server

import (
	"encoding/json"
	"time"

	"wellcheck/internal/domain"
	"wellcheck/internal/engine"
	"wellcheck/internal/jobs"
	"wellcheck/internal/report"
	"wellcheck/internal/window"
)

// Request payloads

type CheckInRequest struct {
	EmployeeID   string     `json:"employee_id" minLength:"1"`
	DepartmentID string     `json:"department_id,omitempty"`
	RawScore     *float64   `json:"raw_score,omitempty" doc:"Emotion score in [-1, 1]; omit when the employee gave none"`
	EmotionLabel string     `json:"emotion_label,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty" format:"date-time"`
	Timezone     string     `json:"timezone,omitempty" example:"Europe/Paris"`
}

type SubmitPlanRequest struct {
	Priority      string `json:"priority" enum:"low,medium,high"`
	AssignTo      string `json:"assign_to"`
	DueDate       string `json:"due_date" example:"2025-01-31"`
	ActionNotes   string `json:"action_notes"`
	FollowUpNotes string `json:"follow_up_notes,omitempty"`
}

type DecidePlanRequest struct {
	Decision    string `json:"decision" enum:"approved,rejected"`
	Suggestions string `json:"suggestions,omitempty"`
}

type AmendSuggestionsRequest struct {
	Suggestions string `json:"suggestions"`
}

type UpdateThresholdsRequest struct {
	Critical           domain.Range `json:"critical"`
	Negative           domain.Range `json:"negative"`
	Neutral            domain.Range `json:"neutral"`
	Positive           domain.Range `json:"positive"`
	WatchlistTrackDays int          `json:"watchlist_track_days"`
	ExpectedVersion    int          `json:"expected_version,omitempty" doc:"Reject the update unless this is the active version"`
}

func (r UpdateThresholdsRequest) config() domain.ThresholdConfig {
	return domain.ThresholdConfig{
		Critical:           r.Critical,
		Negative:           r.Negative,
		Neutral:            r.Neutral,
		Positive:           r.Positive,
		WatchlistTrackDays: r.WatchlistTrackDays,
	}
}

// Responses

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	EmployeeID string          `json:"employee_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage(evt.Payload)
	if len(payload) == 0 || !json.Valid(payload) {
		payload = json.RawMessage(`{}`)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		EmployeeID: evt.EmployeeID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

type FailedJobResponse struct {
	Job      jobs.Job  `json:"job"`
	FailedAt time.Time `json:"failed_at" format:"date-time"`
	Error    string    `json:"error"`
}

func failedJobResponses(items []jobs.FailedJob) []FailedJobResponse {
	out := make([]FailedJobResponse, 0, len(items))
	for _, f := range items {
		msg := f.Job.LastError
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out = append(out, FailedJobResponse{Job: f.Job, FailedAt: f.FailedAt, Error: msg})
	}
	return out
}

type itemsBody[T any] struct {
	Items []T `json:"items"`
}

func items[T any](in []T) itemsBody[T] {
	if in == nil {
		in = []T{}
	}
	return itemsBody[T]{Items: in}
}

// Huma outputs

type checkInOutput struct{ Body engine.TierOutcome }
type checkInsOutput struct{ Body itemsBody[domain.CheckIn] }
type employeeStateOutput struct{ Body engine.EmployeeStatus }
type criticalRecordOutput struct{ Body domain.CriticalRecord }
type criticalRecordsOutput struct{ Body itemsBody[domain.CriticalRecord] }
type planOutput struct{ Body domain.ActionPlan }
type plansOutput struct{ Body itemsBody[domain.ActionPlan] }
type lifecycleOutput struct{ Body engine.LifecycleOutcome }
type thresholdsOutput struct{ Body domain.ThresholdConfig }
type thresholdHistoryOutput struct{ Body itemsBody[domain.ThresholdConfig] }
type watchlistOutput struct{ Body itemsBody[domain.WatchlistEntry] }
type sweepOutput struct {
	Body struct {
		Expired int `json:"expired"`
	}
}
type windowOutput struct{ Body window.Window }
type summaryOutput struct{ Body report.Summary }
type jobStatsOutput struct{ Body itemsBody[jobs.Stats] }
type failedJobsOutput struct{ Body itemsBody[FailedJobResponse] }
type eventsOutput struct{ Body paginatedEvents }
type notificationsOutput struct{ Body itemsBody[domain.Notification] }
