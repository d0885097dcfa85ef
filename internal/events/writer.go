package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wellcheck/internal/repo"
)

const (
	CheckInRecorded       = "checkin.recorded"
	CriticalOpened        = "critical.opened"
	CriticalRepeated      = "critical.repeated"
	WatchlistEntered      = "watchlist.entered"
	WatchlistCancelled    = "watchlist.cancelled"
	WatchlistExpired      = "watchlist.expired"
	PlanSubmitted         = "plan.submitted"
	PlanApproved          = "plan.approved"
	PlanRejected          = "plan.rejected"
	PlanSuggestionsEdited = "plan.suggestions_edited"
	ThresholdsUpdated     = "thresholds.updated"
	AnalysisGenerated     = "analysis.generated"
)

// Writer appends audit events inside the caller's transaction so an event
// exists exactly when its state change commits.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Entry is one event row. EntityID and EmployeeID are optional.
type Entry struct {
	Type       string
	EntityKind string
	EntityID   string
	EmployeeID string
	ActorID    string
	Payload    EventPayload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if e.Payload == nil {
		e.Payload = EventPayload{}
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,employee_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		repo.FormatTime(now()), e.Type, e.EntityKind, nullable(e.EntityID), nullable(e.EmployeeID), e.ActorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
