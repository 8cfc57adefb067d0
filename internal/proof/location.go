package proof

import (
	"context"

	"github.com/lcrostarosa/proofmode/internal/config"
)

// StaticLocation reports a fixed position taken from configuration.
type StaticLocation struct {
	cfg   *config.LocationConfig
	clock Clock
}

// NewStaticLocation returns a provider for cfg. A nil or disabled config
// never yields a fix.
func NewStaticLocation(cfg *config.LocationConfig, clock Clock) *StaticLocation {
	if clock == nil {
		clock = SystemClock{}
	}
	return &StaticLocation{cfg: cfg, clock: clock}
}

// CurrentFix implements LocationProvider.
func (s *StaticLocation) CurrentFix(ctx context.Context) (*Fix, error) {
	if s.cfg == nil || !s.cfg.Enabled {
		return nil, nil
	}
	provider := s.cfg.Provider
	if provider == "" {
		provider = "static"
	}
	return &Fix{
		Latitude:  s.cfg.Latitude,
		Longitude: s.cfg.Longitude,
		Accuracy:  s.cfg.Accuracy,
		Altitude:  s.cfg.Altitude,
		Provider:  provider,
		Time:      s.clock.Now(),
	}, nil
}
