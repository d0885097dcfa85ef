// Package thresholds validates score-range configurations and holds the active one.
package thresholds

import (
	"fmt"
	"math"
	"sync/atomic"

	"wellcheck/internal/domain"
)

const (
	AxisMin = -1.0
	AxisMax = 1.0

	epsilon = 1e-9
)

// Default returns the bootstrap configuration.
func Default() domain.ThresholdConfig {
	return domain.ThresholdConfig{
		Critical:           domain.Range{Min: -1.0, Max: -0.8},
		Negative:           domain.Range{Min: -0.8, Max: -0.2},
		Neutral:            domain.Range{Min: -0.2, Max: 0.2},
		Positive:           domain.Range{Min: 0.2, Max: 1.0},
		WatchlistTrackDays: 14,
	}
}

type namedRange struct {
	name string
	r    domain.Range
}

// Band pairs a tier with its score range.
type Band struct {
	Tier  domain.Tier
	Range domain.Range
}

// Ordered returns the bands from most to least severe.
func Ordered(cfg domain.ThresholdConfig) []Band {
	return []Band{
		{domain.TierCritical, cfg.Critical},
		{domain.TierNegative, cfg.Negative},
		{domain.TierNeutral, cfg.Neutral},
		{domain.TierPositive, cfg.Positive},
	}
}

// Validate enforces the partition invariant: the four ranges tile
// [AxisMin, AxisMax] in severity order, touching at shared boundaries.
func Validate(cfg domain.ThresholdConfig) error {
	if cfg.WatchlistTrackDays < 1 {
		return domain.ValidationError{Field: "watchlist_track_days", Reason: "must be at least 1"}
	}
	ranges := []namedRange{
		{"critical", cfg.Critical},
		{"negative", cfg.Negative},
		{"neutral", cfg.Neutral},
		{"positive", cfg.Positive},
	}
	for _, nr := range ranges {
		if math.IsNaN(nr.r.Min) || math.IsNaN(nr.r.Max) {
			return domain.ValidationError{Field: nr.name, Reason: "bounds must be numbers"}
		}
		if nr.r.Min > nr.r.Max {
			return domain.ValidationError{Field: nr.name, Reason: fmt.Sprintf("min %.4f greater than max %.4f", nr.r.Min, nr.r.Max)}
		}
		if nr.r.Min < AxisMin-epsilon || nr.r.Max > AxisMax+epsilon {
			return domain.ValidationError{Field: nr.name, Reason: fmt.Sprintf("outside score axis [%.1f, %.1f]", AxisMin, AxisMax)}
		}
	}
	if math.Abs(cfg.Critical.Min-AxisMin) > epsilon {
		return domain.ValidationError{Field: "critical", Reason: fmt.Sprintf("must start at %.1f", AxisMin)}
	}
	if math.Abs(cfg.Positive.Max-AxisMax) > epsilon {
		return domain.ValidationError{Field: "positive", Reason: fmt.Sprintf("must end at %.1f", AxisMax)}
	}
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		switch {
		case cur.r.Min < prev.r.Max-epsilon:
			return domain.ValidationError{Field: cur.name, Reason: fmt.Sprintf("overlaps %s", prev.name)}
		case cur.r.Min > prev.r.Max+epsilon:
			return domain.ValidationError{Field: cur.name, Reason: fmt.Sprintf("gap after %s (%.4f..%.4f)", prev.name, prev.r.Max, cur.r.Min)}
		}
	}
	return nil
}

// Active holds the current configuration. Readers never block and always
// observe a complete config.
type Active struct {
	p atomic.Pointer[domain.ThresholdConfig]
}

func NewActive(cfg domain.ThresholdConfig) *Active {
	a := &Active{}
	a.Store(cfg)
	return a
}

func (a *Active) Load() domain.ThresholdConfig {
	if cfg := a.p.Load(); cfg != nil {
		return *cfg
	}
	return Default()
}

func (a *Active) Store(cfg domain.ThresholdConfig) {
	c := cfg
	a.p.Store(&c)
}
