// Package runner provides an interceptor-based command execution framework for CLI commands.
// Interceptors wrap a handler the way HTTP middleware wraps a handler.
package runner

import "errors"

// Standard errors returned by interceptors
var (
	// ErrNotInitialized is returned when no configuration exists yet
	ErrNotInitialized = errors.New("proofmode not initialized - run 'proofmode init' first")

	// ErrProofDisabled is returned when proof generation is switched off
	ErrProofDisabled = errors.New("proof generation is disabled - set proof_enabled in the config")

	// ErrNoIdentity is returned when a command needs an existing signing identity
	ErrNoIdentity = errors.New("no signing identity - run 'proofmode identity --generate'")
)
