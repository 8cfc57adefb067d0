package signing

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

// Local keeps the signing identity in a directory on this machine.
type Local struct {
	dir        string
	info       IdentityInfo
	passphrase string
	tool       *C2PATool

	mu         sync.Mutex
	entity     *openpgp.Entity
	entityPass string
}

// Option configures a Local backend.
type Option func(*Local)

// WithIdentity sets the name, email and URI bound into generated keys.
func WithIdentity(info IdentityInfo) Option {
	return func(l *Local) { l.info = info }
}

// WithPassphrase sets the passphrase used to seal a newly generated key.
func WithPassphrase(passphrase string) Option {
	return func(l *Local) { l.passphrase = passphrase }
}

// WithTool overrides the content-credentials tool.
func WithTool(tool *C2PATool) Option {
	return func(l *Local) { l.tool = tool }
}

// NewLocal creates a backend rooted at dir.
func NewLocal(dir string, opts ...Option) *Local {
	l := &Local{
		dir:        dir,
		info:       IdentityInfo{Name: "ProofMode User"},
		passphrase: "password",
		tool:       NewC2PATool(""),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the identity directory.
func (l *Local) Dir() string {
	return l.dir
}

// EnsureIdentity implements Backend. An empty dir means the backend's own.
func (l *Local) EnsureIdentity(dir string) (string, string, error) {
	if dir == "" {
		dir = l.dir
	}
	if err := ensureFiles(dir, l.info, l.passphrase); err != nil {
		return "", "", err
	}
	return filepath.Join(dir, CertFile), filepath.Join(dir, KeyFile), nil
}

// HasIdentity reports whether a complete identity is present.
func (l *Local) HasIdentity() bool {
	for _, name := range []string{CertFile, KeyFile, PGPSecretFile, PublicKeyFile} {
		if !fileExists(filepath.Join(l.dir, name)) {
			return false
		}
	}
	return true
}

// EmbedAssertion implements Backend.
func (l *Local) EmbedAssertion(ctx context.Context, req AssertionRequest) error {
	return l.tool.Embed(ctx, req)
}

// DetachedSign implements Backend. The identity is generated on first use.
func (l *Local) DetachedSign(r io.Reader, passphrase string, armored bool) ([]byte, error) {
	entity, err := l.signingEntity(passphrase)
	if err != nil {
		return nil, err
	}
	return detachedSign(entity, r, armored)
}

func (l *Local) signingEntity(passphrase string) (*openpgp.Entity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entity != nil && l.entityPass == passphrase {
		return l.entity, nil
	}
	if _, _, err := l.EnsureIdentity(""); err != nil {
		return nil, err
	}
	entity, err := loadEntity(l.dir, passphrase)
	if err != nil {
		return nil, err
	}
	l.entity = entity
	l.entityPass = passphrase
	return entity, nil
}

// PublicKey implements Backend.
func (l *Local) PublicKey() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, PublicKeyFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNoIdentity
		}
		return nil, fmt.Errorf("%w: read public key: %v", apperrors.ErrIO, err)
	}
	return data, nil
}

// Verify implements Verifier against this identity's public key.
func (l *Local) Verify(data io.Reader, signature []byte, armored bool) error {
	pub, err := l.PublicKey()
	if err != nil {
		return err
	}
	return VerifyDetached(pub, data, signature, armored)
}

// Fingerprint returns the hex fingerprint of the OpenPGP public key.
func (l *Local) Fingerprint() (string, error) {
	pub, err := l.PublicKey()
	if err != nil {
		return "", err
	}
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(pub))
	if err != nil || len(keyring) == 0 {
		return "", fmt.Errorf("%w: read public key: %v", apperrors.ErrSigning, err)
	}
	fp := keyring[0].PrimaryKey.Fingerprint
	return strings.ToUpper(hex.EncodeToString(fp[:])), nil
}

// ClearIdentity removes the identity so the next use generates a new one.
func (l *Local) ClearIdentity() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entity = nil
	l.entityPass = ""
	return clearFiles(l.dir)
}
