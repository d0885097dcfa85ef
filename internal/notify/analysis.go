package notify

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"wellcheck/internal/domain"
	"wellcheck/internal/events"
	"wellcheck/internal/jobs"
	"wellcheck/internal/repo"
	"wellcheck/internal/window"
)

const analysisDays = 7

// Analyzer summarizes an employee's recent check-ins into an
// analysis.generated event, once per triggering check-in.
type Analyzer struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
}

type Analysis struct {
	EmployeeID string              `json:"employee_id"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	CheckIns   int                 `json:"check_ins"`
	Scored     int                 `json:"scored"`
	MeanScore  *float64            `json:"mean_score,omitempty"`
	MinScore   *float64            `json:"min_score,omitempty"`
	Tiers      map[domain.Tier]int `json:"tiers"`
	// Trend is the mean of the later half minus the mean of the earlier half.
	Trend *float64 `json:"trend,omitempty"`
}

func (a *Analyzer) Handle(ctx context.Context, job jobs.Job) error {
	var p jobs.CheckInAnalysis
	if err := job.Decode(&p); err != nil {
		return err
	}
	end, err := window.DayWindow(p.LocalDay, p.Timezone, time.Time{})
	if err != nil {
		return err
	}
	startDay, err := time.Parse(window.DateLayout, p.LocalDay)
	if err != nil {
		return err
	}
	from := startDay.AddDate(0, 0, -(analysisDays - 1)).Format(window.DateLayout)
	start, err := window.DayWindow(from, p.Timezone, time.Time{})
	if err != nil {
		return err
	}

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	key := jobs.CheckInAnalysisKey(p.CheckInID)
	claimed, err := a.Repo.ClaimDelivery(ctx, tx, key, job.Type, time.Now())
	if err != nil {
		return fmt.Errorf("claim analysis: %w", err)
	}
	if !claimed {
		return nil
	}
	checkIns, err := a.Repo.CheckInsBetween(ctx, tx, p.EmployeeID, start.StartUTC, end.EndUTC)
	if err != nil {
		return err
	}
	res := Analyze(p.EmployeeID, from, p.LocalDay, checkIns)
	if err := a.Events.Append(ctx, tx, events.Entry{
		Type:       events.AnalysisGenerated,
		EntityKind: "employee",
		EntityID:   p.EmployeeID,
		EmployeeID: p.EmployeeID,
		Payload:    events.EventPayload{"analysis": res, "check_in_id": p.CheckInID},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Analyze computes the summary of check-ins, which must be ordered oldest first.
func Analyze(employeeID, from, to string, checkIns []domain.CheckIn) Analysis {
	res := Analysis{EmployeeID: employeeID, From: from, To: to, CheckIns: len(checkIns), Tiers: map[domain.Tier]int{}}
	var scores []float64
	for _, c := range checkIns {
		if c.Tier != nil {
			res.Tiers[*c.Tier]++
		}
		if c.RawScore != nil {
			scores = append(scores, *c.RawScore)
		}
	}
	res.Scored = len(scores)
	if len(scores) == 0 {
		return res
	}
	mean := meanOf(scores)
	low := math.Inf(1)
	for _, s := range scores {
		low = math.Min(low, s)
	}
	res.MeanScore = &mean
	res.MinScore = &low
	if len(scores) >= 2 {
		half := len(scores) / 2
		trend := meanOf(scores[half:]) - meanOf(scores[:half])
		res.Trend = &trend
	}
	return res
}

func meanOf(v []float64) float64 {
	sum := 0.0
	for _, s := range v {
		sum += s
	}
	return sum / float64(len(v))
}
