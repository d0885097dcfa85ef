package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wellcheck/internal/domain"
	"wellcheck/internal/thresholds"
)

func score(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	cfg := thresholds.Default()
	cases := []struct {
		score float64
		want  domain.Tier
	}{
		{-0.95, domain.TierCritical},
		{-1.0, domain.TierCritical},
		{-0.8, domain.TierCritical},
		{-0.5, domain.TierNegative},
		{-0.2, domain.TierNegative},
		{0, domain.TierNeutral},
		{0.2, domain.TierNeutral},
		{0.21, domain.TierPositive},
		{1.0, domain.TierPositive},
	}
	for _, tc := range cases {
		got, ok := Classify(score(tc.score), cfg)
		assert.True(t, ok)
		assert.Equal(t, tc.want, got, "score %.2f", tc.score)
	}
}

func TestClassifyMissingScore(t *testing.T) {
	tier, ok := Classify(nil, thresholds.Default())
	assert.False(t, ok)
	assert.Empty(t, tier)
}

func TestClassifyGapFallsBackToNeutral(t *testing.T) {
	cfg := thresholds.Default()
	cfg.Negative.Min = -0.7 // bypasses validation on purpose
	tier, ok := Classify(score(-0.75), cfg)
	assert.True(t, ok)
	assert.Equal(t, domain.TierNeutral, tier)
}
