// Package notify holds the job handlers behind the notification, analysis
// and report-cache queues.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"wellcheck/internal/config"
	"wellcheck/internal/domain"
	"wellcheck/internal/jobs"
	"wellcheck/internal/repo"
)

const defaultWebhookTimeout = 5 * time.Second

var logger = slog.Default().With("service", "notify")

// Notifier turns critical-alert and plan-decided jobs into an in-app
// notification and posts them to the configured webhooks. Delivery keys are
// claimed in the deliveries table first, so a job delivered twice by the
// queue is sent once.
type Notifier struct {
	Repo   repo.Repo
	Hooks  []config.WebhookConfig
	Client *http.Client
	Now    func() time.Time
}

func NewNotifier(r repo.Repo, hooks []config.WebhookConfig) *Notifier {
	return &Notifier{
		Repo:   r,
		Hooks:  hooks,
		Client: &http.Client{Timeout: defaultWebhookTimeout},
		Now:    time.Now,
	}
}

type webhookDelivery struct {
	Delivery   string          `json:"delivery"`
	Type       string          `json:"type"`
	JobID      string          `json:"job_id"`
	Attempt    int             `json:"attempt"`
	EmployeeID string          `json:"employee_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// message is what a job says, independent of the channel carrying it.
type message struct {
	key        string
	employeeID string
	title      string
	body       string
}

func (n *Notifier) Handle(ctx context.Context, job jobs.Job) error {
	msg, err := n.identify(ctx, job)
	if err != nil {
		return err
	}
	if msg.key == "" {
		return nil
	}
	claimed, err := n.Repo.ClaimDelivery(ctx, n.Repo.DB, msg.key, job.Type, n.now())
	if err != nil {
		return fmt.Errorf("claim delivery: %w", err)
	}
	if !claimed {
		logger.DebugContext(ctx, "delivery already sent", "delivery", msg.key)
		return nil
	}
	if err := n.deliver(ctx, job, msg); err != nil {
		if rerr := n.Repo.ReleaseDelivery(ctx, n.Repo.DB, msg.key); rerr != nil {
			err = errors.Join(err, fmt.Errorf("release delivery: %w", rerr))
		}
		return err
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, job jobs.Job, msg message) error {
	err := n.Repo.InsertNotification(ctx, n.Repo.DB, domain.Notification{
		ID:          uuid.NewString(),
		DeliveryKey: msg.key,
		Kind:        job.Type,
		EmployeeID:  msg.employeeID,
		Title:       msg.title,
		Body:        msg.body,
		CreatedAt:   n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	body := webhookDelivery{
		Delivery:   msg.key,
		Type:       job.Type,
		JobID:      job.ID,
		Attempt:    job.Attempts,
		EmployeeID: msg.employeeID,
		TS:         n.now().UTC().Format(time.RFC3339),
		Payload:    job.Payload,
	}
	sent := 0
	for _, hook := range n.Hooks {
		if !hook.Active() || !newEventFilter(hook.Events).match(job.Type) {
			continue
		}
		if err := n.post(ctx, hook, body); err != nil {
			return fmt.Errorf("deliver %s to %s: %w", msg.key, hook.URL, err)
		}
		sent++
	}
	logger.InfoContext(ctx, "notification delivered", "delivery", msg.key, "job_type", job.Type, "webhooks", sent)
	return nil
}

// identify describes a job, or returns a zero message when there is nothing
// left to notify about.
func (n *Notifier) identify(ctx context.Context, job jobs.Job) (message, error) {
	switch job.Type {
	case jobs.TypeCriticalAlert:
		var p jobs.CriticalAlert
		if err := job.Decode(&p); err != nil {
			return message{}, err
		}
		if _, err := n.Repo.GetCriticalRecord(ctx, n.Repo.DB, p.RecordID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				logger.WarnContext(ctx, "critical record vanished, alert dropped", "record_id", p.RecordID)
				return message{}, nil
			}
			return message{}, err
		}
		title := fmt.Sprintf("Employee %s entered critical state", p.EmployeeID)
		if p.Reopened {
			title = fmt.Sprintf("Employee %s is critical again during watchlist tracking", p.EmployeeID)
		}
		return message{
			key:        p.IdempotencyKey,
			employeeID: p.EmployeeID,
			title:      title,
			body:       fmt.Sprintf("Score %.2f on %s. An action plan is required.", p.Score, p.LocalDay),
		}, nil
	case jobs.TypePlanDecided:
		var p jobs.PlanDecided
		if err := job.Decode(&p); err != nil {
			return message{}, err
		}
		body := fmt.Sprintf("Decided by %s.", p.DecidedBy)
		if p.TrackUntil != nil {
			body = fmt.Sprintf("Decided by %s. Watchlist tracking until %s.", p.DecidedBy, p.TrackUntil.UTC().Format(time.DateOnly))
		}
		return message{
			key:        p.IdempotencyKey,
			employeeID: p.EmployeeID,
			title:      fmt.Sprintf("Action plan %s %s", p.PlanID, p.Decision),
			body:       body,
		}, nil
	default:
		return message{}, fmt.Errorf("notifier cannot handle job type %s", job.Type)
	}
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n *Notifier) post(ctx context.Context, hook config.WebhookConfig, body webhookDelivery) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wellcheck-Event", body.Type)
	req.Header.Set("X-Wellcheck-Delivery", body.Delivery)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Wellcheck-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
