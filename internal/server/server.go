package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wellcheck/internal/domain"
	"wellcheck/internal/engine"
	"wellcheck/internal/jobs"
	"wellcheck/internal/metrics"
	"wellcheck/internal/repo"
	"wellcheck/internal/report"
	"wellcheck/internal/window"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Jobs     *jobs.Dispatcher
	Reports  *report.Reporter
	Metrics  *metrics.Collector
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflict"`
	Message string         `json:"message" example:"conflict: critical record already has an active plan"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"priority\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the wellcheck API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Jobs == nil || cfg.Reports == nil {
		return nil, errors.New("server needs a job dispatcher and a reporter")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)
	hcfg := huma.DefaultConfig("Wellcheck API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCheckIns(group, cfg.Engine)
	registerCriticalRecords(group, cfg.Engine)
	registerPlans(group, cfg.Engine)
	registerThresholds(group, cfg.Engine)
	registerWatchlist(group, cfg.Engine)
	registerWindows(group, cfg.Engine, cfg.Reports)
	registerJobs(group, cfg.Jobs)
	registerEvents(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics.Handler())
	}

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	}
	var ce domain.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, jobs.ErrUnknownQueue):
		return newAPIError(http.StatusNotFound, "unknown_queue", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	default:
		logger.Error("request failed", "error", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Wellcheck API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCheckIns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "record-check-in",
		Method:      http.MethodPost,
		Path:        "/checkins",
		Summary:     "Record a check-in and apply its lifecycle transition",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CheckInRequest
	}) (*checkInOutput, error) {
		in := engine.CheckInInput{
			EmployeeID:   input.Body.EmployeeID,
			DepartmentID: input.Body.DepartmentID,
			RawScore:     input.Body.RawScore,
			EmotionLabel: input.Body.EmotionLabel,
			Timezone:     input.Body.Timezone,
		}
		if input.Body.Timestamp != nil {
			in.Timestamp = *input.Body.Timestamp
		}
		out, err := e.RecordCheckIn(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &checkInOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "employee-state",
		Method:      http.MethodGet,
		Path:        "/employees/{employee_id}/state",
		Summary:     "Current lifecycle state of an employee",
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
	}) (*employeeStateOutput, error) {
		st, err := e.EmployeeState(ctx, input.EmployeeID, time.Time{})
		if err != nil {
			return nil, handleError(err)
		}
		return &employeeStateOutput{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "employee-check-ins",
		Method:      http.MethodGet,
		Path:        "/employees/{employee_id}/checkins",
		Summary:     "Check-ins of an employee on one local day",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
		Date       string `query:"date" doc:"YYYY-MM-DD, defaults to today"`
		Timezone   string `query:"timezone"`
	}) (*checkInsOutput, error) {
		w, err := window.DayWindow(input.Date, tzOr(input.Timezone, e.Timezone), time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Repo.CheckInsBetween(ctx, e.DB, input.EmployeeID, w.StartUTC, w.EndUTC)
		if err != nil {
			return nil, handleError(err)
		}
		return &checkInsOutput{Body: items(res)}, nil
	})
}

func registerCriticalRecords(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-critical-records",
		Method:      http.MethodGet,
		Path:        "/critical-records",
		Summary:     "List critical records, newest first",
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		Open       bool   `query:"open" doc:"Only unresolved records"`
		Limit      int    `query:"limit" default:"50"`
	}) (*criticalRecordsOutput, error) {
		res, err := e.ListCriticalRecords(ctx, repo.CriticalFilter{
			EmployeeID: input.EmployeeID,
			OpenOnly:   input.Open,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &criticalRecordsOutput{Body: items(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-critical-record",
		Method:      http.MethodGet,
		Path:        "/critical-records/{record_id}",
		Summary:     "Get a critical record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
	}) (*criticalRecordOutput, error) {
		rec, err := e.GetCriticalRecord(ctx, input.RecordID)
		if err != nil {
			return nil, handleError(err)
		}
		return &criticalRecordOutput{Body: rec}, nil
	})
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-action-plan",
		Method:      http.MethodPost,
		Path:        "/critical-records/{record_id}/plans",
		Summary:     "Submit an action plan for an open critical record",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
		ActorID  string `header:"X-Actor-Id"`
		Body     SubmitPlanRequest
	}) (*planOutput, error) {
		p, err := e.SubmitActionPlan(ctx, input.RecordID, engine.PlanFields{
			Priority:      input.Body.Priority,
			AssignTo:      input.Body.AssignTo,
			DueDate:       input.Body.DueDate,
			ActionNotes:   input.Body.ActionNotes,
			FollowUpNotes: input.Body.FollowUpNotes,
			ActorID:       input.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &planOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-action-plans",
		Method:      http.MethodGet,
		Path:        "/critical-records/{record_id}/plans",
		Summary:     "List the plans of a critical record",
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
	}) (*plansOutput, error) {
		res, err := e.ListActionPlans(ctx, input.RecordID)
		if err != nil {
			return nil, handleError(err)
		}
		return &plansOutput{Body: items(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-action-plan",
		Method:      http.MethodGet,
		Path:        "/plans/{plan_id}",
		Summary:     "Get an action plan",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PlanID string `path:"plan_id"`
	}) (*planOutput, error) {
		p, err := e.GetActionPlan(ctx, input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return &planOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-action-plan",
		Method:      http.MethodPost,
		Path:        "/plans/{plan_id}/decision",
		Summary:     "Approve or reject a pending plan",
		Description: "Approval resolves the critical record and starts watchlist tracking.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PlanID  string `path:"plan_id"`
		ActorID string `header:"X-Actor-Id"`
		Body    DecidePlanRequest
	}) (*lifecycleOutput, error) {
		out, err := e.DecideActionPlan(ctx, input.PlanID, domain.PlanStatus(input.Body.Decision), input.Body.Suggestions, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &lifecycleOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "amend-plan-suggestions",
		Method:      http.MethodPatch,
		Path:        "/plans/{plan_id}/suggestions",
		Summary:     "Edit reviewer suggestions on a pending plan",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PlanID  string `path:"plan_id"`
		ActorID string `header:"X-Actor-Id"`
		Body    AmendSuggestionsRequest
	}) (*planOutput, error) {
		p, err := e.AmendSuggestions(ctx, input.PlanID, input.Body.Suggestions, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &planOutput{Body: p}, nil
	})
}

func registerThresholds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-thresholds",
		Method:      http.MethodGet,
		Path:        "/thresholds",
		Summary:     "Active threshold configuration",
	}, func(ctx context.Context, _ *struct{}) (*thresholdsOutput, error) {
		return &thresholdsOutput{Body: e.ActiveThresholds()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-thresholds",
		Method:      http.MethodPut,
		Path:        "/thresholds",
		Summary:     "Replace the threshold configuration with a new version",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string `header:"X-Actor-Id"`
		Body    UpdateThresholdsRequest
	}) (*thresholdsOutput, error) {
		cfg, err := e.UpdateThresholds(ctx, engine.ThresholdUpdate{
			Config:          input.Body.config(),
			ExpectedVersion: input.Body.ExpectedVersion,
			ActorID:         input.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &thresholdsOutput{Body: cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "threshold-history",
		Method:      http.MethodGet,
		Path:        "/thresholds/history",
		Summary:     "Previous threshold versions, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20"`
	}) (*thresholdHistoryOutput, error) {
		res, err := e.ThresholdHistory(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &thresholdHistoryOutput{Body: items(res)}, nil
	})
}

func registerWatchlist(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-watchlist",
		Method:      http.MethodGet,
		Path:        "/watchlist",
		Summary:     "Employees under watchlist tracking",
	}, func(ctx context.Context, _ *struct{}) (*watchlistOutput, error) {
		res, err := e.ListWatchlist(ctx, time.Time{})
		if err != nil {
			return nil, handleError(err)
		}
		return &watchlistOutput{Body: items(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-watchlist",
		Method:      http.MethodPost,
		Path:        "/watchlist/sweep",
		Summary:     "Expire watchlist entries whose tracking period ended",
	}, func(ctx context.Context, _ *struct{}) (*sweepOutput, error) {
		n, err := e.SweepWatchlist(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &sweepOutput{}
		out.Body.Expired = n
		return out, nil
	})
}

func registerWindows(api huma.API, e engine.Engine, reports *report.Reporter) {
	huma.Register(api, huma.Operation{
		OperationID: "day-window",
		Method:      http.MethodGet,
		Path:        "/windows/day",
		Summary:     "UTC bounds of a local calendar day",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date     string `query:"date" doc:"YYYY-MM-DD, defaults to today"`
		Timezone string `query:"timezone"`
	}) (*windowOutput, error) {
		w, err := window.DayWindow(input.Date, tzOr(input.Timezone, e.Timezone), time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &windowOutput{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "daily-report",
		Method:      http.MethodGet,
		Path:        "/reports/daily",
		Summary:     "Check-in counts per tier for one local day",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date     string `query:"date"`
		Timezone string `query:"timezone"`
	}) (*summaryOutput, error) {
		s, err := reports.DailySummary(ctx, input.Date, input.Timezone)
		if err != nil {
			return nil, handleError(err)
		}
		return &summaryOutput{Body: s}, nil
	})
}

func registerJobs(api huma.API, d *jobs.Dispatcher) {
	huma.Register(api, huma.Operation{
		OperationID: "job-stats",
		Method:      http.MethodGet,
		Path:        "/jobs/stats",
		Summary:     "Pending, running and failed counts per queue",
	}, func(ctx context.Context, _ *struct{}) (*jobStatsOutput, error) {
		return &jobStatsOutput{Body: items(d.Stats())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "failed-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs/{queue}/failed",
		Summary:     "Jobs that exhausted their retries",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Queue string `path:"queue"`
	}) (*failedJobsOutput, error) {
		res, err := d.Failed(input.Queue)
		if err != nil {
			return nil, handleError(err)
		}
		return &failedJobsOutput{Body: items(failedJobResponses(res))}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List lifecycle events, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EmployeeID string `query:"employee_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*eventsOutput, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		res, err := e.Repo.ListEvents(ctx, repo.EventFilter{
			Type:       input.Type,
			EmployeeID: input.EmployeeID,
			AfterID:    cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(res) > limit {
			res = res[:limit]
			resp.NextCursor = fmt.Sprintf("%d", res[limit-1].ID)
		}
		for _, evt := range res {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &eventsOutput{Body: resp}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "In-app notifications, newest first",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit" default:"100"`
	}) (*notificationsOutput, error) {
		res, err := e.Repo.ListNotifications(ctx, input.Unread, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &notificationsOutput{Body: items(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-notification-read",
		Method:        http.MethodPost,
		Path:          "/notifications/{notification_id}/read",
		Summary:       "Mark a notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		if err := e.Repo.MarkNotificationRead(ctx, input.NotificationID, time.Now()); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-notification",
		Method:        http.MethodDelete,
		Path:          "/notifications/{notification_id}",
		Summary:       "Delete a notification",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteNotification(ctx, input.NotificationID, time.Now()); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func tzOr(tz, fallback string) string {
	if strings.TrimSpace(tz) == "" {
		return fallback
	}
	return tz
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
