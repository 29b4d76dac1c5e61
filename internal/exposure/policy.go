// Package exposure decides which matching evidence counts as an exposure and
// keeps the resulting exposure days.
package exposure

import (
	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/matching"
)

// Policy turns matching evidence into exposure decisions
type Policy struct {
	// FactorLow weighs minutes below the low attenuation threshold
	FactorLow float64
	// FactorMedium weighs minutes between the low and medium thresholds
	FactorMedium float64
	// MinDuration is the weighted number of minutes needed for an exposure
	MinDuration float64
	// DaysToConsider is the oldest exposure, in days before today, that counts
	DaysToConsider int
}

// PolicyFromConfig builds the policy from the matching and exposure settings
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		FactorLow:      cfg.Matching.GetAttenuationFactorLow(),
		FactorMedium:   cfg.Matching.GetAttenuationFactorMedium(),
		MinDuration:    float64(cfg.Matching.GetMinDurationForExposure()),
		DaysToConsider: cfg.Exposure.DaysToConsider,
	}
}

// WeightedDuration is the attenuation weighted exposure time in minutes.
// Minutes above the medium threshold never count.
func (p Policy) WeightedDuration(ev matching.Evidence) float64 {
	return float64(ev.AttenuationDurations[0])*p.FactorLow +
		float64(ev.AttenuationDurations[1])*p.FactorMedium
}

// Evaluate returns the weighted duration and whether ev is an exposure
func (p Policy) Evaluate(ev matching.Evidence) (float64, bool) {
	if ev.MatchedKeyCount == 0 {
		return 0, false
	}
	if ev.DaysSinceLastExposure < 0 || ev.DaysSinceLastExposure > p.DaysToConsider {
		return 0, false
	}
	weighted := p.WeightedDuration(ev)
	return weighted, weighted >= p.MinDuration
}
