package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/lcrostarosa/proofmode/internal/notarize"
)

// NotaryCall records one call to a ScriptedNotary.
type NotaryCall struct {
	Fingerprint string
	MimeType    string
	Content     []byte
}

// ScriptedNotary is a notarize.Provider returning a fixed result.
type ScriptedNotary struct {
	ProviderName string
	Ext          string
	Result       notarize.Result
	Err          error
	Panic        bool
	Delay        time.Duration

	mu    sync.Mutex
	calls []NotaryCall
}

var _ notarize.Provider = (*ScriptedNotary)(nil)

// NewScriptedNotary returns a provider that answers with a text receipt.
func NewScriptedNotary(name, ext, receipt string) *ScriptedNotary {
	return &ScriptedNotary{ProviderName: name, Ext: ext, Result: notarize.TextResult(receipt)}
}

// NewFailingNotary returns a provider that always fails with err.
func NewFailingNotary(name, ext string, err error) *ScriptedNotary {
	return &ScriptedNotary{ProviderName: name, Ext: ext, Err: err}
}

// Name implements notarize.Provider.
func (s *ScriptedNotary) Name() string { return s.ProviderName }

// FileExtension implements notarize.Provider.
func (s *ScriptedNotary) FileExtension() string { return s.Ext }

// Notarize implements notarize.Provider.
func (s *ScriptedNotary) Notarize(ctx context.Context, fingerprint, mimeType string, content []byte) (notarize.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, NotaryCall{Fingerprint: fingerprint, MimeType: mimeType, Content: content})
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return notarize.Result{}, ctx.Err()
		}
	}
	if s.Panic {
		panic("scripted notary panic")
	}
	if s.Err != nil {
		return notarize.Result{}, s.Err
	}
	return s.Result, nil
}

// Calls returns the recorded calls.
func (s *ScriptedNotary) Calls() []NotaryCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NotaryCall(nil), s.calls...)
}

// Connectivity is a notarize.Connectivity with a settable answer.
type Connectivity struct {
	mu     sync.Mutex
	online bool
	checks int
}

// NewConnectivity returns a check that answers online.
func NewConnectivity(online bool) *Connectivity {
	return &Connectivity{online: online}
}

// Online implements notarize.Connectivity.
func (c *Connectivity) Online(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
	return c.online
}

// Checks returns how many times Online was called.
func (c *Connectivity) Checks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks
}
