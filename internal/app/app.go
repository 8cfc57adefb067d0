// Package app assembles the proof pipeline from configuration.
package app

import (
	"github.com/lcrostarosa/proofmode/internal/api"
	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/middleware"
	"github.com/lcrostarosa/proofmode/internal/notarize"
	"github.com/lcrostarosa/proofmode/internal/pipeline"
	"github.com/lcrostarosa/proofmode/internal/proof"
	"github.com/lcrostarosa/proofmode/internal/signing"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

// App holds every long-lived component of a proofmode process.
type App struct {
	Config       *config.Config
	Store        *storage.Composite
	Local        *storage.Local
	Signer       *signing.Local
	Builder      *proof.Builder
	Notary       *notarize.Coordinator
	Connectivity notarize.Connectivity
	Processor    *pipeline.Processor
}

type options struct {
	callbacks *pipeline.Callbacks
	listener  storage.Listener
	signer    *signing.Local
}

// Option customizes New.
type Option func(*options)

// WithCallbacks observes pipeline results.
func WithCallbacks(cb *pipeline.Callbacks) Option {
	return func(o *options) { o.callbacks = cb }
}

// WithMirrorListener observes writes to the remote mirror. The store logs
// mirror failures itself.
func WithMirrorListener(l storage.Listener) Option {
	return func(o *options) { o.listener = l }
}

// WithSigner replaces the signing backend built from configuration.
func WithSigner(s *signing.Local) Option {
	return func(o *options) { o.signer = s }
}

// NewSigner builds the signing backend described by cfg.
func NewSigner(cfg *config.Config) *signing.Local {
	return signing.NewLocal(cfg.IdentityDir(),
		signing.WithIdentity(signing.IdentityInfo{
			Name: cfg.Signing.IdentityName,
			URI:  cfg.Signing.IdentityURI,
		}),
		signing.WithPassphrase(cfg.Passphrase()),
		signing.WithTool(signing.NewC2PATool(cfg.Signing.C2PATool)),
	)
}

// New wires the store, signer, record builder, notaries and processor.
// The processor is not started; it starts on first submission.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, local, err := storage.Open(cfg.Storage, storage.WithListener(o.listener))
	if err != nil {
		return nil, err
	}

	signer := o.signer
	if signer == nil {
		signer = NewSigner(cfg)
	}

	// Without a configured position there is nothing to wait for.
	var location proof.LocationProvider
	if cfg.Location.Enabled {
		location = proof.NewStaticLocation(&cfg.Location, nil)
	}
	builder := proof.NewBuilder(proof.NewHostDevice(cfg.ConfigDir), location)
	notary, conn := notarize.NewFromConfig(cfg.Notarization, store)

	a := &App{
		Config:       cfg,
		Store:        store,
		Local:        local,
		Signer:       signer,
		Builder:      builder,
		Notary:       notary,
		Connectivity: conn,
	}
	a.Processor = pipeline.New(pipeline.Deps{
		Store:        store,
		Signer:       signer,
		Builder:      builder,
		Notary:       notary,
		Connectivity: conn,
		Callbacks:    o.callbacks,
	}, pipeline.OptionsFromConfig(cfg))

	logging.Debug("Pipeline assembled",
		logging.String("root", local.BasePath()),
		logging.Int("notaries", notary.Len()),
		logging.Bool("enabled", cfg.ProofEnabled))
	return a, nil
}

// APIServer builds the HTTP API over this app.
func (a *App) APIServer(addr string) *api.Server {
	limits := middleware.LimitsFromConfig(a.Config.RateLimit)
	return api.NewServer(addr, api.Deps{
		Processor: a.Processor,
		Store:     a.Store,
		Index:     a.Local,
		Identity:  a.Signer,
		Notaries:  a.Notary.Providers(),
	}, &api.Options{
		RateLimit:   &limits,
		ImportRoots: a.Config.ImportRoots,
	})
}

// Close drains queued submissions and waits for notarization and mirroring.
func (a *App) Close() {
	a.Processor.Close()
}
