package notarize

import (
	"fmt"
	"net/url"
	"time"

	"github.com/lcrostarosa/proofmode/internal/config"
	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

// Provider types accepted in configuration.
const (
	TypeOpenTimestamps = "opentimestamps"
	TypeHTTP           = "http"
)

// NewProvider builds one provider from its configuration.
func NewProvider(p config.NotaryProvider) (Provider, error) {
	if u, err := url.Parse(p.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: provider %q has invalid url %q", apperrors.ErrConfig, p.Name, p.URL)
	}

	switch p.Type {
	case TypeOpenTimestamps:
		return NewOpenTimestamps(p.Name, p.URL), nil
	case TypeHTTP:
		name := p.Name
		if name == "" {
			name = "witness"
		}
		return NewHTTPWitness(name, p.URL, p.APIKey, p.Headers), nil
	default:
		return nil, fmt.Errorf("%w: provider %q has unknown type %q", apperrors.ErrConfig, p.Name, p.Type)
	}
}

// FromConfig returns the enabled providers. Invalid entries are logged and
// skipped.
func FromConfig(cfg config.NotarizationConfig) []Provider {
	var providers []Provider
	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		provider, err := NewProvider(p)
		if err != nil {
			logging.Warn("Skipping notarization provider", logging.Err(err))
			continue
		}
		providers = append(providers, provider)
	}
	return providers
}

// NewFromConfig builds a coordinator with every enabled provider, and the
// connectivity check to gate it with.
func NewFromConfig(cfg config.NotarizationConfig, store storage.Provider) (*Coordinator, Connectivity) {
	c := NewCoordinator(store,
		WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		WithRequestsPerMinute(cfg.RequestsPerMinute),
	)
	for _, p := range FromConfig(cfg) {
		c.Register(p)
	}

	var conn Connectivity = AlwaysOnline{}
	if cfg.ConnectivityURL != "" {
		conn = NewHTTPConnectivity(cfg.ConnectivityURL, 5*time.Second)
	}
	return c, conn
}
