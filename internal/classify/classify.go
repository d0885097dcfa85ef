// Package classify maps raw check-in scores to wellbeing tiers.
package classify

import (
	"log/slog"

	"wellcheck/internal/domain"
	"wellcheck/internal/thresholds"
)

var logger = slog.Default().With("service", "classify")

// Classify returns the tier for score under cfg. ok is false when there is no
// score, which is "no check-in" and never a tier.
//
// Bands are checked from most to least severe, so a boundary shared by two
// bands lands in the more severe one. A score outside every band falls back
// to Neutral with a warning.
func Classify(score *float64, cfg domain.ThresholdConfig) (tier domain.Tier, ok bool) {
	if score == nil {
		return "", false
	}
	for _, b := range thresholds.Ordered(cfg) {
		if b.Range.Contains(*score) {
			return b.Tier, true
		}
	}
	logger.Warn("score outside configured ranges, defaulting to neutral",
		"score", *score,
		"threshold_version", cfg.Version)
	return domain.TierNeutral, true
}
