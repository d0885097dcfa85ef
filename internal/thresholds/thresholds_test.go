package thresholds

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellcheck/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestValidateRejectsBrokenPartitions(t *testing.T) {
	cases := map[string]func(c *domain.ThresholdConfig){
		"gap":            func(c *domain.ThresholdConfig) { c.Negative.Min = -0.7 },
		"overlap":        func(c *domain.ThresholdConfig) { c.Neutral.Min = -0.3 },
		"inverted":       func(c *domain.ThresholdConfig) { c.Neutral = domain.Range{Min: 0.2, Max: -0.2} },
		"short axis low": func(c *domain.ThresholdConfig) { c.Critical.Min = -0.9 },
		"short axis top": func(c *domain.ThresholdConfig) { c.Positive.Max = 0.9 },
		"beyond axis":    func(c *domain.ThresholdConfig) { c.Positive.Max = 1.5 },
		"track days":     func(c *domain.ThresholdConfig) { c.WatchlistTrackDays = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			var ve domain.ValidationError
			assert.True(t, errors.As(err, &ve), "want ValidationError, got %T", err)
		})
	}
}

func TestValidateAcceptsShiftedBoundaries(t *testing.T) {
	cfg := Default()
	cfg.Critical.Max = -0.9
	cfg.Negative.Min = -0.9
	cfg.WatchlistTrackDays = 1
	assert.NoError(t, Validate(cfg))
}

func TestActiveSwapIsWholesale(t *testing.T) {
	a := NewActive(Default())
	next := Default()
	next.Version = 2
	next.Critical = domain.Range{Min: -1, Max: -0.5}
	next.Negative = domain.Range{Min: -0.5, Max: -0.2}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				cfg := a.Load()
				assert.NoError(t, Validate(cfg))
			}
		}()
	}
	a.Store(next)
	wg.Wait()
	assert.Equal(t, 2, a.Load().Version)
}
