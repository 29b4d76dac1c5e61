package tracing

import (
	"github.com/proxtrace/exposure-sync/internal/config"
)

// Settings are the effective engine parameters
type Settings struct {
	SyncsPerDay                int     `json:"syncsPerDay"`
	MatchingCallsPerDay        int     `json:"matchingCallsPerDay"`
	LookbackDays               int     `json:"lookbackDays"`
	DaysToConsider             int     `json:"daysToConsider"`
	DaysToKeep                 int     `json:"daysToKeep"`
	AttenuationThresholdLow    int     `json:"attenuationThresholdLow"`
	AttenuationThresholdMedium int     `json:"attenuationThresholdMedium"`
	AttenuationFactorLow       float64 `json:"attenuationFactorLow"`
	AttenuationFactorMedium    float64 `json:"attenuationFactorMedium"`
	MinDurationForExposure     int     `json:"minDurationForExposure"`
	SyncGracePeriod            string  `json:"syncGracePeriod"`
	NotificationGracePeriod    string  `json:"notificationGracePeriod"`
	WithFederationGateway      *bool   `json:"withFederationGateway,omitempty"`
	Timezone                   string  `json:"timezone"`
}

// Settings returns the effective engine parameters
func (c *Client) Settings() Settings {
	return settingsFromConfig(c.cfg, c.Calendar.Location().String())
}

func settingsFromConfig(cfg *config.Config, timezone string) Settings {
	return Settings{
		SyncsPerDay:                cfg.Sync.SyncsPerDay,
		MatchingCallsPerDay:        cfg.Sync.MatchingCallsPerDay,
		LookbackDays:               cfg.Sync.LookbackDays,
		DaysToConsider:             cfg.Exposure.DaysToConsider,
		DaysToKeep:                 cfg.Exposure.DaysToKeep,
		AttenuationThresholdLow:    cfg.Matching.AttenuationThresholdLow,
		AttenuationThresholdMedium: cfg.Matching.AttenuationThresholdMedium,
		AttenuationFactorLow:       cfg.Matching.GetAttenuationFactorLow(),
		AttenuationFactorMedium:    cfg.Matching.GetAttenuationFactorMedium(),
		MinDurationForExposure:     cfg.Matching.GetMinDurationForExposure(),
		SyncGracePeriod:            cfg.Errors.GetSyncGracePeriod().String(),
		NotificationGracePeriod:    cfg.Errors.GetNotificationGracePeriod().String(),
		WithFederationGateway:      cfg.Report.WithFederationGateway,
		Timezone:                   timezone,
	}
}
