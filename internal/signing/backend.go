// Package signing provides the signing identity and the signature
// operations the proof pipeline calls into.
package signing

import (
	"context"
	"io"
)

// Identity file names inside an identity directory.
const (
	CertFile      = "cert.pem"
	KeyFile       = "key.pem"
	PGPSecretFile = "pgp-secret.json"
	PublicKeyFile = "pubkey.asc"
)

// Backend is the signing capability consumed by the pipeline.
type Backend interface {
	// EnsureIdentity generates the certificate and key in dir if they are
	// absent and returns their paths. Existing files are never replaced.
	EnsureIdentity(dir string) (certPath, keyPath string, err error)

	// EmbedAssertion writes a copy of req.InputFile carrying a signed
	// content-credentials manifest to req.OutputFile. The input is never
	// modified.
	EmbedAssertion(ctx context.Context, req AssertionRequest) error

	// DetachedSign returns an OpenPGP detached signature over r.
	DetachedSign(r io.Reader, passphrase string, armor bool) ([]byte, error)

	// PublicKey returns the armored public key matching DetachedSign.
	PublicKey() ([]byte, error)
}

// Verifier checks detached signatures produced by a Backend.
type Verifier interface {
	Verify(data io.Reader, signature []byte, armor bool) error
}

// AssertionRequest describes one content-credentials embedding.
type AssertionRequest struct {
	CertPath             string
	KeyPath              string
	InputFile            string
	OutputFile           string
	IdentityURI          string
	IdentityName         string
	DirectCapture        bool
	AllowMachineLearning bool
}
