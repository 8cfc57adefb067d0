package pipeline

import "github.com/lcrostarosa/proofmode/internal/notarize"

// Event reports how one request finished.
type Event struct {
	Ref         string
	Fingerprint string
	Skipped     bool
	Err         error
}

// Callbacks provides hooks for proof lifecycle events.
// All callbacks are optional - nil callbacks are simply not called.
// Callbacks run on the worker goroutine, except OnNotarized.
type Callbacks struct {
	// OnProofGenerated is called after a new bundle is written and signed
	OnProofGenerated func(ev Event)

	// OnProofSkipped is called when the bundle already existed
	OnProofSkipped func(ev Event)

	// OnProofFailed is called when no bundle could be produced
	OnProofFailed func(ev Event)

	// OnNotarized is called once every provider has answered for a fingerprint
	OnNotarized func(fingerprint string, outcomes []notarize.Outcome)
}

func (c *Callbacks) callOnProofGenerated(ev Event) {
	if c != nil && c.OnProofGenerated != nil {
		c.OnProofGenerated(ev)
	}
}

func (c *Callbacks) callOnProofSkipped(ev Event) {
	if c != nil && c.OnProofSkipped != nil {
		c.OnProofSkipped(ev)
	}
}

func (c *Callbacks) callOnProofFailed(ev Event) {
	if c != nil && c.OnProofFailed != nil {
		c.OnProofFailed(ev)
	}
}

func (c *Callbacks) callOnNotarized(fingerprint string, outcomes []notarize.Outcome) {
	if c != nil && c.OnNotarized != nil {
		c.OnNotarized(fingerprint, outcomes)
	}
}
