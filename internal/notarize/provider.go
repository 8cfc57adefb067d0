// Package notarize submits fingerprints to third-party notarization
// services and stores their receipts next to the proof.
package notarize

import (
	"context"
	"fmt"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

// Provider is a remote notarization service.
type Provider interface {
	// Name identifies the provider in logs and outcomes.
	Name() string

	// FileExtension is appended to the fingerprint to name the receipt.
	FileExtension() string

	// Notarize submits a fingerprint and returns the service's receipt.
	Notarize(ctx context.Context, fingerprint, mimeType string, content []byte) (Result, error)
}

// ResultKind tells which field of a Result is set.
type ResultKind int

const (
	KindText ResultKind = iota
	KindBytes
	KindFile
)

// Result is a receipt: text, opaque bytes, or a temporary file whose
// extension names the stored receipt.
type Result struct {
	Kind  ResultKind
	Text  string
	Bytes []byte
	File  string
}

// TextResult wraps a textual receipt.
func TextResult(s string) Result { return Result{Kind: KindText, Text: s} }

// BytesResult wraps a binary receipt.
func BytesResult(b []byte) Result { return Result{Kind: KindBytes, Bytes: b} }

// FileResult wraps a receipt written to a temporary file. The coordinator
// removes the file once it is stored.
func FileResult(path string) Result { return Result{Kind: KindFile, File: path} }

// Error is a provider failure with a service specific code.
type Error struct {
	Provider string
	Code     int
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (code %d): %s", apperrors.ErrNotarization, e.Provider, e.Code, e.Message)
}

// Unwrap lets callers match ErrNotarization.
func (e *Error) Unwrap() error {
	return apperrors.ErrNotarization
}

// Codes used when a provider fails before getting an HTTP status.
const (
	CodeRequest  = -1
	CodePanic    = -2
	CodeTimeout  = -3
	CodeStorage  = -4
	CodeThrottle = -5
)

func newError(provider string, code int, format string, args ...interface{}) *Error {
	return &Error{Provider: provider, Code: code, Message: fmt.Sprintf(format, args...)}
}
