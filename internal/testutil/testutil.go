// Package testutil provides shared fixtures and fakes for proof pipeline tests.
// It covers:
// - Media fixtures from fixed or seeded bytes
// - A recording signing backend
// - An in-memory storage provider with failure injection
// - Scripted notarization providers
// - Fixed device, location and clock collaborators
package testutil

import (
	"encoding/binary"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/lcrostarosa/proofmode/internal/hashing"
)

// HelloFingerprint is the fingerprint of the bytes "hello".
const HelloFingerprint = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

// Seed picks the seed for a test's random fixtures. PROOFMODE_TEST_SEED pins
// it; otherwise a fresh one is drawn. Either way it is logged.
func Seed(t testing.TB) uint64 {
	t.Helper()
	if s, err := strconv.ParseUint(os.Getenv("PROOFMODE_TEST_SEED"), 10, 64); err == nil {
		t.Logf("seed %d from PROOFMODE_TEST_SEED", s)
		return s
	}
	s := rand.Uint64()
	t.Logf("seed %d (rerun with PROOFMODE_TEST_SEED=%d)", s, s)
	return s
}

// RandomBytes returns n bytes that depend only on seed.
func RandomBytes(n int, seed uint64) []byte {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	b := make([]byte, n)
	rand.NewChaCha8(key).Read(b)
	return b
}

// MediaFixture is a media file on disk with its expected fingerprint.
type MediaFixture struct {
	Path        string
	Data        []byte
	Fingerprint string
}

// NewMediaFixture writes data to name inside a fresh temp dir.
func NewMediaFixture(t *testing.T, name string, data []byte) *MediaFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write media fixture: %v", err)
	}
	return &MediaFixture{Path: path, Data: data, Fingerprint: hashing.Bytes(data)}
}

// NewRandomMedia writes size bytes derived from seed as a media fixture.
func NewRandomMedia(t *testing.T, name string, size int, seed uint64) *MediaFixture {
	t.Helper()
	return NewMediaFixture(t, name, RandomBytes(size, seed))
}
