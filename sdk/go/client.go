// Package wellchecksdk is a small client for the wellcheck HTTP API.
package wellchecksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wellcheck/internal/domain"
	"wellcheck/internal/engine"
	"wellcheck/internal/jobs"
	"wellcheck/internal/window"
)

type (
	CheckIn         = domain.CheckIn
	CriticalRecord  = domain.CriticalRecord
	ActionPlan      = domain.ActionPlan
	ThresholdConfig = domain.ThresholdConfig
	WatchlistEntry  = domain.WatchlistEntry
	Notification    = domain.Notification
	TierOutcome     = engine.TierOutcome
	EmployeeStatus  = engine.EmployeeStatus
	PlanOutcome     = engine.LifecycleOutcome
	Window          = window.Window
	JobStats        = jobs.Stats
)

// FailedJob is a job that exhausted its retries.
type FailedJob struct {
	Job      jobs.Job  `json:"job"`
	FailedAt time.Time `json:"failed_at"`
	Error    string    `json:"error"`
}

// Client is a minimal wellcheck HTTP API client.
type Client struct {
	BaseURL string
	// ActorID is sent as X-Actor-Id on writes.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	EmployeeID string         `json:"employee_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type CheckInRequest struct {
	EmployeeID   string     `json:"employee_id"`
	DepartmentID string     `json:"department_id,omitempty"`
	RawScore     *float64   `json:"raw_score,omitempty"`
	EmotionLabel string     `json:"emotion_label,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	Timezone     string     `json:"timezone,omitempty"`
}

type PlanRequest struct {
	Priority      string `json:"priority"`
	AssignTo      string `json:"assign_to"`
	DueDate       string `json:"due_date"`
	ActionNotes   string `json:"action_notes"`
	FollowUpNotes string `json:"follow_up_notes,omitempty"`
}

type ThresholdsRequest struct {
	Critical           domain.Range `json:"critical"`
	Negative           domain.Range `json:"negative"`
	Neutral            domain.Range `json:"neutral"`
	Positive           domain.Range `json:"positive"`
	WatchlistTrackDays int          `json:"watchlist_track_days"`
	ExpectedVersion    int          `json:"expected_version,omitempty"`
}

// RecordCheckIn posts a check-in and returns the lifecycle outcome.
func (c *Client) RecordCheckIn(ctx context.Context, in CheckInRequest) (TierOutcome, error) {
	var resp TierOutcome
	err := c.do(ctx, http.MethodPost, "checkins", in, &resp)
	return resp, err
}

func (c *Client) EmployeeState(ctx context.Context, employeeID string) (EmployeeStatus, error) {
	var resp EmployeeStatus
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("employees/%s/state", url.PathEscape(employeeID)), nil, &resp)
	return resp, err
}

// CriticalRecords lists records, optionally only unresolved ones.
func (c *Client) CriticalRecords(ctx context.Context, employeeID string, openOnly bool) ([]CriticalRecord, error) {
	q := url.Values{}
	if employeeID != "" {
		q.Set("employee_id", employeeID)
	}
	if openOnly {
		q.Set("open", "true")
	}
	var resp struct {
		Items []CriticalRecord `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("critical-records", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) SubmitPlan(ctx context.Context, recordID string, p PlanRequest) (ActionPlan, error) {
	var resp ActionPlan
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("critical-records/%s/plans", url.PathEscape(recordID)), p, &resp)
	return resp, err
}

func (c *Client) ListPlans(ctx context.Context, recordID string) ([]ActionPlan, error) {
	var resp struct {
		Items []ActionPlan `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("critical-records/%s/plans", url.PathEscape(recordID)), nil, &resp)
	return resp.Items, err
}

// DecidePlan approves or rejects a pending plan.
func (c *Client) DecidePlan(ctx context.Context, planID, decision, suggestions string) (PlanOutcome, error) {
	body := map[string]any{"decision": decision}
	if suggestions != "" {
		body["suggestions"] = suggestions
	}
	var resp PlanOutcome
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("plans/%s/decision", url.PathEscape(planID)), body, &resp)
	return resp, err
}

func (c *Client) AmendSuggestions(ctx context.Context, planID, suggestions string) (ActionPlan, error) {
	var resp ActionPlan
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("plans/%s/suggestions", url.PathEscape(planID)), map[string]any{"suggestions": suggestions}, &resp)
	return resp, err
}

func (c *Client) Thresholds(ctx context.Context) (ThresholdConfig, error) {
	var resp ThresholdConfig
	err := c.do(ctx, http.MethodGet, "thresholds", nil, &resp)
	return resp, err
}

func (c *Client) UpdateThresholds(ctx context.Context, t ThresholdsRequest) (ThresholdConfig, error) {
	var resp ThresholdConfig
	err := c.do(ctx, http.MethodPut, "thresholds", t, &resp)
	return resp, err
}

func (c *Client) Watchlist(ctx context.Context) ([]WatchlistEntry, error) {
	var resp struct {
		Items []WatchlistEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "watchlist", nil, &resp)
	return resp.Items, err
}

// DayWindow returns the UTC bounds of a local day.
func (c *Client) DayWindow(ctx context.Context, date, timezone string) (Window, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	if timezone != "" {
		q.Set("timezone", timezone)
	}
	var resp Window
	err := c.do(ctx, http.MethodGet, withQuery("windows/day", q), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, employeeID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if employeeID != "" {
		q.Set("employee_id", employeeID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) JobStats(ctx context.Context) ([]JobStats, error) {
	var resp struct {
		Items []JobStats `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "jobs/stats", nil, &resp)
	return resp.Items, err
}

func (c *Client) FailedJobs(ctx context.Context, queue string) ([]FailedJob, error) {
	var resp struct {
		Items []FailedJob `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("jobs/%s/failed", url.PathEscape(queue)), nil, &resp)
	return resp.Items, err
}

func (c *Client) ListNotifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	var resp struct {
		Items []Notification `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("notifications", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("notifications/%s/read", url.PathEscape(id)), nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("notifications/%s", url.PathEscape(id)), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
