package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"wellcheck/internal/app"
	"wellcheck/internal/config"
	"wellcheck/internal/db"
	"wellcheck/internal/domain"
	"wellcheck/internal/engine"
	"wellcheck/internal/repo"
	"wellcheck/internal/server"
	"wellcheck/internal/window"
)

const drainTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "wc",
	Short: "Wellcheck CLI",
	Long: `Wellcheck classifies employee emotion check-ins and tracks the critical/watchlist lifecycle.
- Check-in: a score in [-1, 1] classified into positive, neutral, negative or critical by the active thresholds.
- Critical record: opened by the first critical check-in; further critical check-ins only refresh it.
- Action plan: submitted against an open record; approval resolves the record and starts watchlist tracking.
- Watchlist: tracking for watchlist_track_days after approval; a critical check-in during tracking reopens a record.
- Thresholds: versioned score ranges; changes apply to new check-ins only.
- Workspace: the .wellcheck directory holding the database, next to wellcheck.yml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WELLCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "API base URL for remote commands")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(checkInCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(recordsCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(thresholdsCmd())
	rootCmd.AddCommand(watchlistCmd())
	rootCmd.AddCommand(windowCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(inboxCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write wellcheck.yml and create the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s exists; keeping it (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t := a.Engine.ActiveThresholds()
				fmt.Printf("database %s ready, thresholds version %d\n", db.Path(workspace), t.Version)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing wellcheck.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect wellcheck.yml",
		Long:  "wellcheck.yml holds the timezone, the seed thresholds for a fresh database, job retry policy and webhooks. Threshold edits after the first run live in the database.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			return yaml.NewEncoder(os.Stdout).Encode(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate wellcheck.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func checkInCmd() *cobra.Command {
	var in engine.CheckInInput
	var score, at string
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Record a check-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if score != "" {
				v, err := strconv.ParseFloat(score, 64)
				if err != nil {
					return fmt.Errorf("--score: %w", err)
				}
				in.RawScore = &v
			}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				in.Timestamp = ts
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.RecordCheckIn(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tier := string(out.Tier)
				if !out.HasTier {
					tier = "-"
				}
				fmt.Printf("check-in %s: tier %s, %s, state %s\n", out.CheckIn.ID, tier, out.Transition, out.State)
				if out.Record != nil {
					fmt.Printf("critical record %s\n", out.Record.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.EmployeeID, "employee", "", "employee id")
	cmd.Flags().StringVar(&in.DepartmentID, "department", "", "department id")
	cmd.Flags().StringVar(&score, "score", "", "emotion score in [-1, 1]; omit for no score")
	cmd.Flags().StringVar(&in.EmotionLabel, "label", "", "emotion label")
	cmd.Flags().StringVar(&in.Timezone, "timezone", "", "employee timezone (defaults to config)")
	cmd.Flags().StringVar(&at, "at", "", "check-in time, RFC3339 (defaults to now)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <employee-id>",
		Short: "Show an employee's lifecycle state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Engine.EmployeeState(ctx, args[0], time.Time{})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Printf("%s: %s\n", st.EmployeeID, st.State)
				if st.Record != nil {
					fmt.Printf("open critical record %s since %s\n", st.Record.ID, st.Record.CreatedAt.Format(time.RFC3339))
				}
				if st.Watchlist != nil {
					fmt.Printf("watchlist until %s\n", st.Watchlist.TrackUntil.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func recordsCmd() *cobra.Command {
	var f repo.CriticalFilter
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List critical records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				recs, err := a.Engine.ListCriticalRecords(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := newTable("ID", "Employee", "Score", "Created", "Last critical", "Resolved")
				for _, r := range recs {
					resolved := ""
					if r.ResolvedAt != nil {
						resolved = r.ResolvedAt.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{r.ID, r.EmployeeID, r.EmotionScoreAtTrigger, r.CreatedAt.Format(time.RFC3339), r.LastCriticalAt.Format(time.RFC3339), resolved})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.EmployeeID, "employee", "", "employee filter")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "only unresolved records")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max records")
	return cmd
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{
		Use:   "plan",
		Short: "Manage action plans",
		Long:  "An action plan answers an open critical record. Approving it resolves the record and puts the employee on the watchlist; rejecting it keeps the record open for a new plan.",
	}
	plan.AddCommand(planSubmitCmd())
	plan.AddCommand(planDecideCmd())
	plan.AddCommand(planAmendCmd())
	plan.AddCommand(planListCmd())
	plan.AddCommand(planShowCmd())
	return plan
}

func planSubmitCmd() *cobra.Command {
	var f engine.PlanFields
	cmd := &cobra.Command{
		Use:   "submit <record-id>",
		Short: "Submit a plan for an open critical record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ActorID = viper.GetString("actor-id")
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.SubmitActionPlan(ctx, args[0], f)
				if err != nil {
					return err
				}
				return printPlans([]domain.ActionPlan{p})
			})
		},
	}
	cmd.Flags().StringVar(&f.Priority, "priority", "medium", "low, medium or high")
	cmd.Flags().StringVar(&f.AssignTo, "assign-to", "", "owner of the plan")
	cmd.Flags().StringVar(&f.DueDate, "due", "", "due date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.ActionNotes, "notes", "", "planned actions")
	cmd.Flags().StringVar(&f.FollowUpNotes, "follow-up", "", "follow-up notes")
	return cmd
}

func planDecideCmd() *cobra.Command {
	var approve, reject bool
	var suggestions string
	cmd := &cobra.Command{
		Use:   "decide <plan-id>",
		Short: "Approve or reject a pending plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return fmt.Errorf("pass exactly one of --approve or --reject")
			}
			decision := domain.PlanApproved
			if reject {
				decision = domain.PlanRejected
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.DecideActionPlan(ctx, args[0], decision, suggestions, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("plan %s %s (%s)\n", out.Plan.ID, out.Plan.Status, out.Transition)
				if out.Watchlist != nil {
					fmt.Printf("%s on watchlist until %s\n", out.Watchlist.EmployeeID, out.Watchlist.TrackUntil.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the plan")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the plan")
	cmd.Flags().StringVar(&suggestions, "suggestions", "", "reviewer suggestions")
	return cmd
}

func planAmendCmd() *cobra.Command {
	var suggestions string
	cmd := &cobra.Command{
		Use:   "amend <plan-id>",
		Short: "Replace reviewer suggestions on a pending plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.AmendSuggestions(ctx, args[0], suggestions, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printPlans([]domain.ActionPlan{p})
			})
		},
	}
	cmd.Flags().StringVar(&suggestions, "suggestions", "", "reviewer suggestions")
	_ = cmd.MarkFlagRequired("suggestions")
	return cmd
}

func planListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <record-id>",
		Short: "List plans of a critical record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				plans, err := a.Engine.ListActionPlans(ctx, args[0])
				if err != nil {
					return err
				}
				return printPlans(plans)
			})
		},
	}
}

func planShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.GetActionPlan(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func thresholdsCmd() *cobra.Command {
	th := &cobra.Command{
		Use:   "thresholds",
		Short: "Inspect and change score thresholds",
	}
	th.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printThresholds([]domain.ThresholdConfig{a.Engine.ActiveThresholds()})
			})
		},
	})
	th.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "List threshold versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				versions, err := a.Engine.ThresholdHistory(ctx, 0)
				if err != nil {
					return err
				}
				return printThresholds(versions)
			})
		},
	})
	th.AddCommand(thresholdsSetCmd())
	return th
}

func thresholdsSetCmd() *cobra.Command {
	var file string
	var expected int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a new threshold version from a YAML file",
		Long:  "The file uses the thresholds section layout of wellcheck.yml (critical, negative, neutral, positive, watchlist_track_days).",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var seed config.ThresholdsConfig
			if err := yaml.Unmarshal(data, &seed); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg, err := a.Engine.UpdateThresholds(ctx, engine.ThresholdUpdate{
					Config: domain.ThresholdConfig{
						Critical:           seed.Critical,
						Negative:           seed.Negative,
						Neutral:            seed.Neutral,
						Positive:           seed.Positive,
						WatchlistTrackDays: seed.WatchlistTrackDays,
					},
					ExpectedVersion: expected,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printThresholds([]domain.ThresholdConfig{cfg})
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with the new ranges")
	cmd.Flags().IntVar(&expected, "expected-version", 0, "fail unless this version is active")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func watchlistCmd() *cobra.Command {
	wl := &cobra.Command{
		Use:   "watchlist",
		Short: "Inspect watchlist tracking",
	}
	wl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List employees under tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Engine.ListWatchlist(ctx, time.Time{})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable("Employee", "Record", "Moved", "Until")
				for _, w := range entries {
					tw.AppendRow(table.Row{w.EmployeeID, w.CriticalRecordID, w.MovedAt.Format(time.RFC3339), w.TrackUntil.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	})
	wl.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Expire entries whose tracking period ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.SweepWatchlist(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"expired": n})
				}
				fmt.Printf("expired %d watchlist entries\n", n)
				return nil
			})
		},
	})
	return wl
}

func windowCmd() *cobra.Command {
	var date, tz string
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Show the UTC bounds of a local day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tz == "" {
				cfg, err := config.LoadOptional(viper.GetString("workspace"))
				if err != nil {
					return err
				}
				tz = cfg.Timezone
			}
			w, err := window.DayWindow(date, tz, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(w)
			}
			fmt.Printf("%s %s: [%s, %s) %s\n", w.Date, w.Timezone, w.StartUTC.Format(time.RFC3339), w.EndUTC.Format(time.RFC3339), w.Duration())
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "local date YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringVar(&tz, "timezone", "", "IANA timezone (defaults to config)")
	return cmd
}

func reportCmd() *cobra.Command {
	var date, tz string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Check-in counts per tier for one local day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Reports.DailySummary(ctx, date, tz)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("%s (%s): %d check-ins\n", s.Window.Date, s.Window.Timezone, s.Total)
				tw := newTable("Tier", "Count")
				for _, t := range []domain.Tier{domain.TierCritical, domain.TierNegative, domain.TierNeutral, domain.TierPositive} {
					tw.AppendRow(table.Row{t, s.Counts[t]})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "local date YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringVar(&tz, "timezone", "", "IANA timezone (defaults to config)")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Event log"}
	var f repo.EventFilter
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show events, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evts, err := a.Engine.Repo.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable("ID", "TS", "Type", "Employee", "Entity", "Actor")
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EmployeeID, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EmployeeID, "employee", "", "employee filter")
	tail.Flags().Int64Var(&f.AfterID, "after", 0, "only events after this id")
	tail.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	logc.AddCommand(tail)
	return logc
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server, job workers and the watchlist sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Drain(drainTimeout); err != nil {
					fmt.Fprintln(os.Stderr, "shutdown:", err)
				}
			}()
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Jobs:     a.Jobs,
				Reports:  a.Reports,
				Metrics:  a.Metrics,
				BasePath: basePath,
			})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, ctx := errgroup.WithContext(cmd.Context())
			a.Start(ctx)
			g.Go(func() error { return a.RunSweeper(ctx, 0) })
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				fmt.Printf("Serving Wellcheck API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr in wellcheck.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

// withApp opens the workspace, runs fn with job workers started, then waits
// for the jobs fn enqueued before closing.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) (err error) {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	a.Start(ctx)
	defer func() {
		if derr := a.Drain(drainTimeout); derr != nil && err == nil {
			err = derr
		}
	}()
	return fn(ctx, a)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printPlans(plans []domain.ActionPlan) error {
	if viper.GetBool("json") {
		return printJSON(plans)
	}
	tw := newTable("ID", "Record", "Employee", "Priority", "Assignee", "Due", "Status", "Suggestions")
	for _, p := range plans {
		tw.AppendRow(table.Row{p.ID, p.CriticalRecordID, p.EmployeeID, p.Priority, p.AssignTo, p.DueDate, p.Status, p.Suggestions})
	}
	tw.Render()
	return nil
}

func printThresholds(versions []domain.ThresholdConfig) error {
	if viper.GetBool("json") {
		return printJSON(versions)
	}
	rng := func(r domain.Range) string { return fmt.Sprintf("[%.2f, %.2f]", r.Min, r.Max) }
	tw := newTable("Version", "Critical", "Negative", "Neutral", "Positive", "Watchlist days", "Updated by")
	for _, v := range versions {
		tw.AppendRow(table.Row{v.Version, rng(v.Critical), rng(v.Negative), rng(v.Neutral), rng(v.Positive), v.WatchlistTrackDays, v.UpdatedBy})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
