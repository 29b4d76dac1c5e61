package exposure

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/matching"
)

func defaultPolicy() Policy {
	return PolicyFromConfig(config.Default())
}

func TestPolicyEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		evidence     matching.Evidence
		wantWeighted float64
		wantExposure bool
	}{
		{
			name:         "twenty close minutes",
			evidence:     matching.Evidence{AttenuationDurations: [3]int{20, 0, 0}, DaysSinceLastExposure: 1, MatchedKeyCount: 1},
			wantWeighted: 20,
			wantExposure: true,
		},
		{
			name:         "fourteen weighted minutes",
			evidence:     matching.Evidence{AttenuationDurations: [3]int{10, 8, 0}, DaysSinceLastExposure: 1, MatchedKeyCount: 2},
			wantWeighted: 14,
		},
		{
			name:         "exactly the threshold",
			evidence:     matching.Evidence{AttenuationDurations: [3]int{5, 20, 0}, DaysSinceLastExposure: 0, MatchedKeyCount: 1},
			wantWeighted: 15,
			wantExposure: true,
		},
		{
			name:     "far minutes never count",
			evidence: matching.Evidence{AttenuationDurations: [3]int{0, 0, 600}, MatchedKeyCount: 1},
		},
		{
			name:     "no matched keys",
			evidence: matching.Evidence{AttenuationDurations: [3]int{30, 0, 0}, MatchedKeyCount: 0},
		},
		{
			name:     "too old",
			evidence: matching.Evidence{AttenuationDurations: [3]int{30, 0, 0}, DaysSinceLastExposure: 11, MatchedKeyCount: 1},
		},
		{
			name:         "oldest day considered",
			evidence:     matching.Evidence{AttenuationDurations: [3]int{30, 0, 0}, DaysSinceLastExposure: 10, MatchedKeyCount: 1},
			wantWeighted: 30,
			wantExposure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			weighted, ok := defaultPolicy().Evaluate(tt.evidence)
			assert.Equal(t, tt.wantExposure, ok)
			if tt.wantWeighted != 0 {
				assert.InDelta(t, tt.wantWeighted, weighted, 1e-9)
			}
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	t.Parallel()

	p := defaultPolicy()
	assert.InDelta(t, 1.0, p.FactorLow, 1e-9)
	assert.InDelta(t, 0.5, p.FactorMedium, 1e-9)
	assert.InDelta(t, 15.0, p.MinDuration, 1e-9)
	assert.Equal(t, 10, p.DaysToConsider)
}

func TestPolicyFromConfig_DisabledMediumBucket(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	zero := 0.0
	cfg.Matching.AttenuationFactorMedium = &zero
	policy := PolicyFromConfig(cfg)

	weighted, ok := policy.Evaluate(matching.Evidence{AttenuationDurations: [3]int{10, 30, 0}, MatchedKeyCount: 1})
	assert.InDelta(t, 10, weighted, 1e-9)
	assert.False(t, ok)

	weighted, ok = policy.Evaluate(matching.Evidence{AttenuationDurations: [3]int{15, 30, 0}, MatchedKeyCount: 1})
	assert.InDelta(t, 15, weighted, 1e-9)
	assert.True(t, ok)
}
