package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/hashing"
	"github.com/lcrostarosa/proofmode/internal/signing"
)

// FakePublicKey is what Signer.PublicKey returns.
const FakePublicKey = "-----BEGIN FAKE PUBLIC KEY-----\ntest\n-----END FAKE PUBLIC KEY-----\n"

// EmbedMarker is appended to media copies written by Signer.EmbedAssertion.
var EmbedMarker = []byte("\nC2PA-MANIFEST")

// Signer is a signing.Backend whose signatures are a deterministic function
// of the signed bytes. It records every call.
type Signer struct {
	mu sync.Mutex

	// EnsureErr, EmbedErr and SignErr are returned by the matching methods
	// when set.
	EnsureErr error
	EmbedErr  error
	SignErr   error

	EnsureCalls int
	Embeds      []signing.AssertionRequest
	Signed      [][]byte
}

var (
	_ signing.Backend  = (*Signer)(nil)
	_ signing.Verifier = (*Signer)(nil)
)

// NewSigner returns a signer that succeeds.
func NewSigner() *Signer {
	return &Signer{}
}

// FakeSignature is the signature Signer produces for data.
func FakeSignature(data []byte, armored bool) []byte {
	sig := "sig:" + hashing.Bytes(data)
	if armored {
		return []byte("-----BEGIN PGP SIGNATURE-----\n" + sig + "\n-----END PGP SIGNATURE-----\n")
	}
	return []byte(sig)
}

// EnsureIdentity implements signing.Backend. No files are created.
func (s *Signer) EnsureIdentity(dir string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EnsureCalls++
	if s.EnsureErr != nil {
		return "", "", s.EnsureErr
	}
	return filepath.Join(dir, signing.CertFile), filepath.Join(dir, signing.KeyFile), nil
}

// EmbedAssertion implements signing.Backend by copying the input and
// appending EmbedMarker.
func (s *Signer) EmbedAssertion(ctx context.Context, req signing.AssertionRequest) error {
	s.mu.Lock()
	s.Embeds = append(s.Embeds, req)
	embedErr := s.EmbedErr
	s.mu.Unlock()

	if embedErr != nil {
		return embedErr
	}
	data, err := os.ReadFile(req.InputFile)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSigning, err)
	}
	return os.WriteFile(req.OutputFile, append(data, EmbedMarker...), 0644)
}

// DetachedSign implements signing.Backend.
func (s *Signer) DetachedSign(r io.Reader, passphrase string, armored bool) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SignErr != nil {
		return nil, s.SignErr
	}
	s.Signed = append(s.Signed, data)
	return FakeSignature(data, armored), nil
}

// PublicKey implements signing.Backend.
func (s *Signer) PublicKey() ([]byte, error) {
	return []byte(FakePublicKey), nil
}

// Verify implements signing.Verifier.
func (s *Signer) Verify(data io.Reader, signature []byte, armored bool) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if !bytes.Equal(FakeSignature(b, armored), signature) {
		return fmt.Errorf("%w: signature mismatch", apperrors.ErrVerification)
	}
	return nil
}

// EmbedCount returns how many embeddings were requested.
func (s *Signer) EmbedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Embeds)
}

// SignCount returns how many signatures were produced.
func (s *Signer) SignCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Signed)
}

// WasSigned reports whether data was signed byte for byte.
func (s *Signer) WasSigned(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.Signed {
		if bytes.Equal(d, data) {
			return true
		}
	}
	return false
}

// ErrInjected is the default error used by failure injection.
var ErrInjected = errors.New("injected failure")
