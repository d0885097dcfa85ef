package domain

import "time"

type Tier string

const (
	TierPositive Tier = "positive"
	TierNeutral  Tier = "neutral"
	TierNegative Tier = "negative"
	TierCritical Tier = "critical"
)

// Severity orders tiers from least to most severe.
func (t Tier) Severity() int {
	switch t {
	case TierPositive:
		return 0
	case TierNeutral:
		return 1
	case TierNegative:
		return 2
	case TierCritical:
		return 3
	default:
		return -1
	}
}

type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether score lies in the closed range.
func (r Range) Contains(score float64) bool {
	return score >= r.Min && score <= r.Max
}

type ThresholdConfig struct {
	Version            int       `json:"version"`
	Positive           Range     `json:"positive"`
	Neutral            Range     `json:"neutral"`
	Negative           Range     `json:"negative"`
	Critical           Range     `json:"critical"`
	WatchlistTrackDays int       `json:"watchlist_track_days"`
	UpdatedAt          time.Time `json:"updated_at" format:"date-time"`
	UpdatedBy          string    `json:"updated_by,omitempty"`
}

type CheckIn struct {
	ID               string    `json:"id"`
	EmployeeID       string    `json:"employee_id"`
	DepartmentID     string    `json:"department_id,omitempty"`
	TimestampUTC     time.Time `json:"timestamp_utc" format:"date-time"`
	LocalDay         string    `json:"local_day"`
	RawScore         *float64  `json:"raw_score,omitempty"`
	EmotionLabel     string    `json:"emotion_label,omitempty"`
	Tier             *Tier     `json:"tier,omitempty"`
	ThresholdVersion *int      `json:"threshold_version,omitempty"`
}

type CriticalRecord struct {
	ID                    string     `json:"id"`
	EmployeeID            string     `json:"employee_id"`
	DepartmentID          string     `json:"department_id,omitempty"`
	EmotionScoreAtTrigger float64    `json:"emotion_score_at_trigger"`
	CreatedAt             time.Time  `json:"created_at" format:"date-time"`
	LastCriticalAt        time.Time  `json:"last_critical_at" format:"date-time"`
	IsResolved            bool       `json:"is_resolved"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty" format:"date-time"`
}

type WatchlistEntry struct {
	EmployeeID       string    `json:"employee_id"`
	CriticalRecordID string    `json:"critical_record_id"`
	MovedAt          time.Time `json:"moved_at" format:"date-time"`
	TrackUntil       time.Time `json:"track_until" format:"date-time"`
}

// Expired reports whether the tracking period is over at now.
func (w WatchlistEntry) Expired(now time.Time) bool {
	return !now.Before(w.TrackUntil)
}

type PlanStatus string

const (
	PlanPending  PlanStatus = "pending"
	PlanApproved PlanStatus = "approved"
	PlanRejected PlanStatus = "rejected"
)

type ActionPlan struct {
	ID               string     `json:"id"`
	CriticalRecordID string     `json:"critical_record_id"`
	EmployeeID       string     `json:"employee_id"`
	Priority         string     `json:"priority" enum:"low,medium,high"`
	AssignTo         string     `json:"assign_to"`
	DueDate          string     `json:"due_date"`
	ActionNotes      string     `json:"action_notes"`
	FollowUpNotes    string     `json:"follow_up_notes,omitempty"`
	Status           PlanStatus `json:"status" enum:"pending,approved,rejected"`
	Suggestions      string     `json:"suggestions,omitempty"`
	CreatedBy        string     `json:"created_by"`
	DecidedBy        string     `json:"decided_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at" format:"date-time"`
	DecidedAt        *time.Time `json:"decided_at,omitempty" format:"date-time"`
}

type EmployeeState string

const (
	StateNormal    EmployeeState = "normal"
	StateCritical  EmployeeState = "critical"
	StateWatchlist EmployeeState = "watchlist"
)

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Notification is an in-app message produced by the notifications queue.
type Notification struct {
	ID          string     `json:"id"`
	DeliveryKey string     `json:"delivery_key"`
	Kind        string     `json:"kind"`
	EmployeeID  string     `json:"employee_id,omitempty"`
	Title       string     `json:"title"`
	Body        string     `json:"body,omitempty"`
	CreatedAt   time.Time  `json:"created_at" format:"date-time"`
	ReadAt      *time.Time `json:"read_at,omitempty" format:"date-time"`
}

func (n Notification) Read() bool { return n.ReadAt != nil }
