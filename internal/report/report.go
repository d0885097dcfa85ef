// Package report aggregates stored check-in tiers per local calendar day.
package report

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"wellcheck/internal/domain"
	"wellcheck/internal/repo"
	"wellcheck/internal/window"
)

type Summary struct {
	Window window.Window       `json:"window"`
	Counts map[domain.Tier]int `json:"counts"`
	Total  int                 `json:"total"`
	// Cached is true when the summary came from the cache.
	Cached bool `json:"cached"`
}

// Reporter caches summaries of days that have fully ended. The current day is
// always recomputed since check-ins keep arriving.
type Reporter struct {
	repo     repo.Repo
	cache    *cache.Cache
	timezone string
	now      func() time.Time
}

func New(r repo.Repo, timezone string, ttl time.Duration) *Reporter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Reporter{
		repo:     r,
		cache:    cache.New(ttl, 2*ttl),
		timezone: timezone,
		now:      time.Now,
	}
}

// DailySummary counts the tiers of check-ins inside the local day date in tz.
// Empty date means today; empty tz means the reporter's default timezone.
func (r *Reporter) DailySummary(ctx context.Context, date, tz string) (Summary, error) {
	if tz == "" {
		tz = r.timezone
	}
	now := r.now()
	w, err := window.DayWindow(date, tz, now)
	if err != nil {
		return Summary{}, err
	}
	key := w.Date + "|" + w.Timezone
	if v, ok := r.cache.Get(key); ok {
		s := v.(Summary)
		s.Cached = true
		return s, nil
	}
	counts, err := r.repo.CountTiersBetween(ctx, w.StartUTC, w.EndUTC)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Window: w, Counts: counts}
	for _, n := range counts {
		s.Total += n
	}
	if !now.Before(w.EndUTC) {
		r.cache.Set(key, s, cache.DefaultExpiration)
	}
	return s, nil
}

// Invalidate drops every cached summary.
func (r *Reporter) Invalidate() {
	r.cache.Flush()
}

// Cached is the number of cached summaries.
func (r *Reporter) Cached() int {
	return r.cache.ItemCount()
}
