// Package window converts local calendar days into UTC query bounds.
package window

import (
	"fmt"
	"strings"
	"time"

	"wellcheck/internal/domain"
)

const DateLayout = "2006-01-02"

// Window is the half-open interval [StartUTC, EndUTC) covering one local day.
type Window struct {
	Date     string    `json:"date"`
	Timezone string    `json:"timezone"`
	StartUTC time.Time `json:"start_utc" format:"date-time"`
	EndUTC   time.Time `json:"end_utc" format:"date-time"`
}

// Duration is the real length of the local day, 23h or 25h across DST changes.
func (w Window) Duration() time.Duration {
	return w.EndUTC.Sub(w.StartUTC)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.StartUTC) && t.Before(w.EndUTC)
}

// LoadLocation resolves an IANA zone name; empty means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, domain.ValidationError{Field: "timezone", Reason: fmt.Sprintf("unknown timezone %q", tz)}
	}
	return loc, nil
}

// DayWindow returns the UTC bounds of date (YYYY-MM-DD, local to tz). An empty
// date means the local day containing now.
func DayWindow(date, tz string, now time.Time) (Window, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return Window{}, err
	}
	var y int
	var m time.Month
	var d int
	date = strings.TrimSpace(date)
	if date == "" {
		y, m, d = now.In(loc).Date()
	} else {
		parsed, err := time.ParseInLocation(DateLayout, date, loc)
		if err != nil {
			return Window{}, domain.ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", date)}
		}
		y, m, d = parsed.Date()
	}
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return Window{
		Date:     start.Format(DateLayout),
		Timezone: loc.String(),
		StartUTC: start.UTC(),
		EndUTC:   end.UTC(),
	}, nil
}

// LocalDay returns the calendar date of ts in tz.
func LocalDay(ts time.Time, tz string) (string, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return ts.In(loc).Format(DateLayout), nil
}
