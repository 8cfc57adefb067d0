// Package errors provides sentinel errors for the proof pipeline.
package errors

import "errors"

// Source errors
var (
	// ErrNotFound is returned when the media a proof is requested for has vanished.
	// The pipeline treats it as "nothing to prove".
	ErrNotFound = errors.New("media not found")

	// ErrIO is returned when reading or writing an artifact fails.
	ErrIO = errors.New("i/o failure")
)

// Signing errors
var (
	// ErrSigning is returned when identity generation or a signature computation fails.
	ErrSigning = errors.New("signing failed")

	// ErrToolNotInstalled is returned when the content-credentials tool is missing.
	ErrToolNotInstalled = errors.New("c2patool is not installed")

	// ErrNoIdentity is returned when a signing identity is required but absent.
	ErrNoIdentity = errors.New("no signing identity")
)

// Notarization errors
var (
	// ErrNotarization is returned by a single notarization provider. It never
	// propagates past the coordinator.
	ErrNotarization = errors.New("notarization failed")

	// ErrOffline is returned when the connectivity check fails.
	ErrOffline = errors.New("network unavailable")
)

// Storage errors
var (
	// ErrProofNotFound is returned when a proof artifact does not exist.
	ErrProofNotFound = errors.New("proof artifact not found")

	// ErrInvalidFingerprint is returned when a fingerprint is not 64 lowercase hex characters.
	ErrInvalidFingerprint = errors.New("invalid fingerprint")

	// ErrInvalidIdentifier is returned for artifact names that would escape their directory.
	ErrInvalidIdentifier = errors.New("invalid artifact identifier")
)

// Configuration errors
var (
	// ErrConfig is returned when a configuration block is invalid.
	ErrConfig = errors.New("invalid configuration")

	// ErrNotInitialized is returned when proofmode has not been initialized.
	ErrNotInitialized = errors.New("proofmode not initialized")
)

// Verification errors
var (
	// ErrVerification is returned when a stored bundle fails verification.
	ErrVerification = errors.New("verification failed")
)
