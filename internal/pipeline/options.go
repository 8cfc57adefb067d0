// Package pipeline turns submitted media into proof bundles.
//
// A Processor owns one worker goroutine. Every submission goes through its
// queue, so proof generation is serialized process-wide and each fingerprint
// is generated at most once. Notarization runs after the bundle is durable,
// on its own goroutines.
package pipeline

import (
	"time"

	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/notarize"
	"github.com/lcrostarosa/proofmode/internal/proof"
	"github.com/lcrostarosa/proofmode/internal/signing"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

// DefaultQueueSize is the number of submissions buffered ahead of the worker.
const DefaultQueueSize = 64

// Flusher is implemented by stores with background writes.
type Flusher interface {
	Flush()
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Store   storage.Provider
	Signer  signing.Backend
	Builder *proof.Builder

	// Notary and Connectivity are optional. Without a notary nothing is
	// notarized; without a connectivity check the network is assumed up.
	Notary       *notarize.Coordinator
	Connectivity notarize.Connectivity

	Callbacks *Callbacks
}

// Options control what a Processor produces.
type Options struct {
	ProofEnabled     bool
	IncludeDeviceIDs bool
	IncludeLocation  bool
	IncludeNetwork   bool
	AutoNotarize     bool
	EmbedCredentials bool

	Passphrase           string
	IdentityDir          string
	IdentityName         string
	IdentityURI          string
	AllowMachineLearning bool

	QueueSize int
}

// OptionsFromConfig maps configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ProofEnabled:         cfg.ProofEnabled,
		IncludeDeviceIDs:     cfg.IncludeDeviceIDs,
		IncludeLocation:      cfg.IncludeLocation,
		IncludeNetwork:       cfg.IncludeNetwork,
		AutoNotarize:         cfg.AutoNotarize,
		EmbedCredentials:     cfg.EmbedCredentials,
		Passphrase:           cfg.Passphrase(),
		IdentityDir:          cfg.IdentityDir(),
		IdentityName:         cfg.Signing.IdentityName,
		IdentityURI:          cfg.Signing.IdentityURI,
		AllowMachineLearning: cfg.Signing.AllowMachineLearning,
		QueueSize:            DefaultQueueSize,
	}
}

func (o Options) recordOptions(notes string) proof.Options {
	return proof.Options{
		IncludeDeviceIDs: o.IncludeDeviceIDs,
		IncludeLocation:  o.IncludeLocation,
		IncludeNetwork:   o.IncludeNetwork,
		Notes:            notes,
	}
}

// Request is one item to generate a proof for. Exactly one of Path and Data
// is set.
type Request struct {
	Path     string
	Data     []byte
	MimeType string

	// Autogenerated marks media produced by direct capture rather than
	// imported.
	Autogenerated bool
	CreatedAt     *time.Time
	Notes         string
}

// Ref names the request in logs and events.
func (r Request) Ref() string {
	if r.Path != "" {
		return r.Path
	}
	return "bytes"
}
