// Package storage persists proof bundles, one directory or prefix per
// fingerprint.
package storage

import (
	"context"
	"io"
)

// Provider stores the artifacts of proof bundles.
type Provider interface {
	SaveStream(ctx context.Context, fingerprint, identifier string, r io.Reader) error
	SaveBytes(ctx context.Context, fingerprint, identifier string, data []byte) error
	SaveText(ctx context.Context, fingerprint, identifier, text string) error

	// GetInputStream opens an artifact, or returns ErrProofNotFound.
	GetInputStream(ctx context.Context, fingerprint, identifier string) (io.ReadCloser, error)

	// ProofExists reports whether the proof record for fingerprint exists.
	ProofExists(ctx context.Context, fingerprint string) bool
	ProofIdentifierExists(ctx context.Context, fingerprint, identifier string) bool

	// GetProofSet lists the locators of every artifact of a bundle.
	GetProofSet(ctx context.Context, fingerprint string) ([]string, error)
	GetProofItem(ctx context.Context, locator string) (io.ReadCloser, error)

	// Locator returns where an artifact is (or would be) stored.
	Locator(fingerprint, identifier string) string
}

// PublicKeyName is the public key published with every bundle.
const PublicKeyName = "pubkey.asc"

// ProofFileName is the canonical proof record.
func ProofFileName(fingerprint string) string {
	return fingerprint + ".proof.csv"
}

// ProofJSONFileName is the JSON form of the proof record.
func ProofJSONFileName(fingerprint string) string {
	return fingerprint + ".proof.json"
}

// SignatureName is the detached signature of an artifact.
func SignatureName(identifier string) string {
	return identifier + ".asc"
}

// MediaSignatureName is the detached signature of the media bytes.
func MediaSignatureName(fingerprint string) string {
	return SignatureName(fingerprint)
}

// ReceiptName is a notarization receipt with a provider specific extension.
func ReceiptName(fingerprint, ext string) string {
	return fingerprint + ext
}

// URIName is the cross reference to an artifact's mirrored copy.
func URIName(identifier string) string {
	return identifier + ".uri"
}

// ReadAll reads a whole artifact.
func ReadAll(ctx context.Context, p Provider, fingerprint, identifier string) ([]byte, error) {
	rc, err := p.GetInputStream(ctx, fingerprint, identifier)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
