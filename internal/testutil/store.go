package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

const memScheme = "mem://"

// MemoryStore is an in-memory storage.Provider.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]map[string][]byte
	writes  int

	// FailWrite, when set, is consulted before every write. A non-nil
	// result fails the write.
	FailWrite func(fingerprint, identifier string) error
}

var _ storage.Provider = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]map[string][]byte)}
}

// FailOn makes writes of identifiers with the given suffix fail.
func (m *MemoryStore) FailOn(suffix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWrite = func(_, identifier string) error {
		if strings.HasSuffix(identifier, suffix) {
			return fmt.Errorf("%w: %v", apperrors.ErrIO, ErrInjected)
		}
		return nil
	}
}

// ClearFailures makes every later write succeed.
func (m *MemoryStore) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWrite = nil
}

// Writes returns how many writes succeeded.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Get returns a stored artifact.
func (m *MemoryStore) Get(fingerprint, identifier string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[fingerprint][identifier]
	return data, ok
}

// Identifiers lists the artifacts of a bundle, sorted.
func (m *MemoryStore) Identifiers(fingerprint string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.objects[fingerprint]))
	for id := range m.objects[fingerprint] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryStore) put(fingerprint, identifier string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrite != nil {
		if err := m.FailWrite(fingerprint, identifier); err != nil {
			return err
		}
	}
	bundle, ok := m.objects[fingerprint]
	if !ok {
		bundle = make(map[string][]byte)
		m.objects[fingerprint] = bundle
	}
	bundle[identifier] = data
	m.writes++
	return nil
}

// SaveStream implements storage.Provider.
func (m *MemoryStore) SaveStream(ctx context.Context, fingerprint, identifier string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrIO, err)
	}
	return m.put(fingerprint, identifier, data)
}

// SaveBytes implements storage.Provider.
func (m *MemoryStore) SaveBytes(ctx context.Context, fingerprint, identifier string, data []byte) error {
	return m.put(fingerprint, identifier, append([]byte(nil), data...))
}

// SaveText implements storage.Provider.
func (m *MemoryStore) SaveText(ctx context.Context, fingerprint, identifier, text string) error {
	return m.put(fingerprint, identifier, []byte(text))
}

// GetInputStream implements storage.Provider.
func (m *MemoryStore) GetInputStream(ctx context.Context, fingerprint, identifier string) (io.ReadCloser, error) {
	data, ok := m.Get(fingerprint, identifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", apperrors.ErrProofNotFound, fingerprint, identifier)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ProofExists implements storage.Provider.
func (m *MemoryStore) ProofExists(ctx context.Context, fingerprint string) bool {
	return m.ProofIdentifierExists(ctx, fingerprint, storage.ProofFileName(fingerprint))
}

// ProofIdentifierExists implements storage.Provider.
func (m *MemoryStore) ProofIdentifierExists(ctx context.Context, fingerprint, identifier string) bool {
	_, ok := m.Get(fingerprint, identifier)
	return ok
}

// GetProofSet implements storage.Provider.
func (m *MemoryStore) GetProofSet(ctx context.Context, fingerprint string) ([]string, error) {
	ids := m.Identifiers(fingerprint)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProofNotFound, fingerprint)
	}
	locators := make([]string, len(ids))
	for i, id := range ids {
		locators[i] = m.Locator(fingerprint, id)
	}
	return locators, nil
}

// GetProofItem implements storage.Provider.
func (m *MemoryStore) GetProofItem(ctx context.Context, locator string) (io.ReadCloser, error) {
	fingerprint, identifier, ok := strings.Cut(strings.TrimPrefix(locator, memScheme), "/")
	if !strings.HasPrefix(locator, memScheme) || !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProofNotFound, locator)
	}
	return m.GetInputStream(ctx, fingerprint, identifier)
}

// Locator implements storage.Provider.
func (m *MemoryStore) Locator(fingerprint, identifier string) string {
	return memScheme + fingerprint + "/" + identifier
}
