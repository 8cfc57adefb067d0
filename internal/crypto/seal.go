// Package crypto protects the OpenPGP secret key at rest. The key is
// encrypted with AES-256-GCM under an Argon2id key derived from the
// identity passphrase.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

const envelopeVersion = 1

// ErrBadPassphrase is returned when an envelope cannot be opened.
var ErrBadPassphrase = errors.New("wrong passphrase or corrupted key file")

// KDF holds the Argon2id cost parameters. They are stored with every
// envelope so existing key files stay readable if the defaults change.
type KDF struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory_kib"`
	Threads uint8  `json:"threads"`
}

// DefaultKDF is used for newly sealed keys.
var DefaultKDF = KDF{Time: 3, Memory: 64 * 1024, Threads: 4}

func (k KDF) key(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, k.Time, k.Memory, k.Threads, 32)
}

// Envelope is the on-disk form of a sealed key. Byte fields are base64 in JSON.
type Envelope struct {
	Version    int    `json:"version"`
	KDF        KDF    `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Seal encrypts plaintext under passphrase with DefaultKDF.
func Seal(plaintext []byte, passphrase string) (*Envelope, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("nothing to seal")
	}
	env := &Envelope{Version: envelopeVersion, KDF: DefaultKDF, Salt: make([]byte, 16)}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := env.aead(passphrase)
	if err != nil {
		return nil, err
	}
	env.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, nil)
	return env, nil
}

// Open decrypts the envelope.
func (e *Envelope) Open(passphrase string) ([]byte, error) {
	if e.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported key file version %d", e.Version)
	}
	aead, err := e.aead(passphrase)
	if err != nil {
		return nil, err
	}
	if len(e.Nonce) != aead.NonceSize() {
		return nil, ErrBadPassphrase
	}
	plain, err := aead.Open(nil, e.Nonce, e.Ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plain, nil
}

func (e *Envelope) aead(passphrase string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.KDF.key(passphrase, e.Salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// WriteSealedFile seals plaintext into path, readable by the owner only.
func WriteSealedFile(path string, plaintext []byte, passphrase string) error {
	env, err := Seal(plaintext, passphrase)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ReadSealedFile opens a file written by WriteSealedFile. A missing file
// is reported with an error satisfying os.IsNotExist.
func ReadSealedFile(path, passphrase string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	return env.Open(passphrase)
}
