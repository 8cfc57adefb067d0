// Package hashing computes the content address (fingerprint) of media.
//
// A fingerprint is the SHA-256 digest of the media bytes rendered as 64
// lowercase hex characters. It is never salted, so identical content always
// maps to the same fingerprint and therefore to the same proof bundle.
package hashing

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	sha256 "github.com/minio/sha256-simd"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

// BufferSize bounds the memory used while hashing large video files.
const BufferSize = 64 * 1024

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Reader hashes everything readable from r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, BufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("%w: hashing stream: %v", apperrors.ErrIO, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes hashes an in-memory buffer.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// File hashes the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: %v", apperrors.ErrIO, err)
	}
	defer f.Close()
	return Reader(f)
}

// Valid reports whether s looks like a fingerprint.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
