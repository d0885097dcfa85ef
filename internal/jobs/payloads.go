package jobs

import (
	"fmt"
	"time"
)

// Payloads carry the identifiers a handler needs to detect a repeated
// delivery; handlers look up current state instead of trusting stale copies.

type CriticalAlert struct {
	IdempotencyKey string    `json:"idempotency_key"`
	EmployeeID     string    `json:"employee_id"`
	DepartmentID   string    `json:"department_id,omitempty"`
	RecordID       string    `json:"record_id"`
	Score          float64   `json:"score"`
	LocalDay       string    `json:"local_day"`
	Reopened       bool      `json:"reopened"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type PlanDecided struct {
	IdempotencyKey string     `json:"idempotency_key"`
	PlanID         string     `json:"plan_id"`
	RecordID       string     `json:"record_id"`
	EmployeeID     string     `json:"employee_id"`
	Decision       string     `json:"decision"`
	Suggestions    string     `json:"suggestions,omitempty"`
	DecidedBy      string     `json:"decided_by"`
	DecidedAt      time.Time  `json:"decided_at"`
	TrackUntil     *time.Time `json:"track_until,omitempty"`
}

type CheckInAnalysis struct {
	EmployeeID string `json:"employee_id"`
	CheckInID  string `json:"check_in_id"`
	LocalDay   string `json:"local_day"`
	Timezone   string `json:"timezone"`
}

type ReportCacheFlush struct {
	ThresholdVersion int `json:"threshold_version"`
}

// CriticalAlertKey names one alert per critical record; a reopened episode on
// the same day gets its own key.
func CriticalAlertKey(employeeID, localDay, recordID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", TypeCriticalAlert, employeeID, localDay, recordID)
}

func PlanDecidedKey(planID string) string {
	return fmt.Sprintf("%s:%s", TypePlanDecided, planID)
}

func CheckInAnalysisKey(checkInID string) string {
	return fmt.Sprintf("%s:%s", TypeCheckInAnalysis, checkInID)
}

func ReportCacheFlushKey(version int) string {
	return fmt.Sprintf("%s:v%d", TypeReportCacheFlush, version)
}
