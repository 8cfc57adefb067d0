package signing

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/lcrostarosa/proofmode/internal/crypto"
	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/filelock"
	"github.com/lcrostarosa/proofmode/internal/logging"
)

const (
	lockTimeout  = 10 * time.Second
	certLifetime = 10 * 365 * 24 * time.Hour
	pgpKeyBits   = 2048
)

// IdentityInfo describes who the generated identity belongs to.
type IdentityInfo struct {
	Name  string
	Email string
	URI   string
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensureFiles creates whatever part of the identity in dir is missing.
// A half-present pair is reported instead of being overwritten.
func ensureFiles(dir string, info IdentityInfo, passphrase string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: create identity dir: %v", apperrors.ErrSigning, err)
	}

	return filelock.ForDir(dir).Do(context.Background(), lockTimeout, func() error {
		certPath := filepath.Join(dir, CertFile)
		keyPath := filepath.Join(dir, KeyFile)
		switch hasCert, hasKey := fileExists(certPath), fileExists(keyPath); {
		case hasCert && hasKey:
		case !hasCert && !hasKey:
			if err := generateCertificate(certPath, keyPath, info); err != nil {
				return err
			}
			logging.Info("Generated signing certificate", logging.String("path", certPath))
		default:
			return fmt.Errorf("%w: incomplete certificate pair in %s", apperrors.ErrSigning, dir)
		}

		secretPath := filepath.Join(dir, PGPSecretFile)
		pubPath := filepath.Join(dir, PublicKeyFile)
		switch hasSecret, hasPub := fileExists(secretPath), fileExists(pubPath); {
		case hasSecret && hasPub:
		case !hasSecret && !hasPub:
			if err := generatePGPKey(secretPath, pubPath, info, passphrase); err != nil {
				return err
			}
			logging.Info("Generated OpenPGP signing key", logging.String("path", pubPath))
		default:
			return fmt.Errorf("%w: incomplete OpenPGP key pair in %s", apperrors.ErrSigning, dir)
		}
		return nil
	})
}

func generateCertificate(certPath, keyPath string, info IdentityInfo) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("%w: generate key: %v", apperrors.ErrSigning, err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("%w: generate serial: %v", apperrors.ErrSigning, err)
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   info.Name,
			Organization: []string{"ProofMode"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
		BasicConstraintsValid: true,
	}
	if info.Email != "" {
		tmpl.EmailAddresses = []string{info.Email}
	}
	if info.URI != "" {
		if u, err := url.Parse(info.URI); err == nil && u.Scheme != "" {
			tmpl.URIs = []*url.URL{u}
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("%w: create certificate: %v", apperrors.ErrSigning, err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("%w: marshal key: %v", apperrors.ErrSigning, err)
	}

	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), 0600); err != nil {
		return fmt.Errorf("%w: write key: %v", apperrors.ErrSigning, err)
	}
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644); err != nil {
		os.Remove(keyPath)
		return fmt.Errorf("%w: write certificate: %v", apperrors.ErrSigning, err)
	}
	return nil
}

func generatePGPKey(secretPath, pubPath string, info IdentityInfo, passphrase string) error {
	entity, err := openpgp.NewEntity(info.Name, "proofmode", info.Email, &packet.Config{RSABits: pgpKeyBits})
	if err != nil {
		return fmt.Errorf("%w: generate OpenPGP key: %v", apperrors.ErrSigning, err)
	}

	var secret bytes.Buffer
	if err := entity.SerializePrivate(&secret, nil); err != nil {
		return fmt.Errorf("%w: serialize OpenPGP key: %v", apperrors.ErrSigning, err)
	}

	var pub bytes.Buffer
	w, err := armor.Encode(&pub, openpgp.PublicKeyType, nil)
	if err != nil {
		return fmt.Errorf("%w: armor public key: %v", apperrors.ErrSigning, err)
	}
	if err := entity.Serialize(w); err != nil {
		return fmt.Errorf("%w: serialize public key: %v", apperrors.ErrSigning, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: armor public key: %v", apperrors.ErrSigning, err)
	}

	if err := crypto.WriteSealedFile(secretPath, secret.Bytes(), passphrase); err != nil {
		return fmt.Errorf("%w: seal OpenPGP key: %v", apperrors.ErrSigning, err)
	}
	if err := os.WriteFile(pubPath, pub.Bytes(), 0644); err != nil {
		os.Remove(secretPath)
		return fmt.Errorf("%w: write public key: %v", apperrors.ErrSigning, err)
	}
	return nil
}

// loadEntity unseals the OpenPGP signing key in dir.
func loadEntity(dir, passphrase string) (*openpgp.Entity, error) {
	plain, err := crypto.ReadSealedFile(filepath.Join(dir, PGPSecretFile), passphrase)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNoIdentity
		}
		return nil, fmt.Errorf("%w: unseal OpenPGP key: %v", apperrors.ErrSigning, err)
	}
	entity, err := openpgp.ReadEntity(packet.NewReader(bytes.NewReader(plain)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse OpenPGP key: %v", apperrors.ErrSigning, err)
	}
	return entity, nil
}

// clearFiles removes every identity file in dir.
func clearFiles(dir string) error {
	if !fileExists(dir) {
		return nil
	}
	return filelock.ForDir(dir).Do(context.Background(), lockTimeout, func() error {
		for _, name := range []string{CertFile, KeyFile, PGPSecretFile, PublicKeyFile} {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", name, err)
			}
		}
		return nil
	})
}
