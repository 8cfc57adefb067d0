package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/pipeline"
	"github.com/lcrostarosa/proofmode/internal/storage"
	"github.com/lcrostarosa/proofmode/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.AutoNotarize = false
	cfg.Notarization.Providers = nil
	return cfg
}

func TestNewGeneratesProof(t *testing.T) {
	cfg := testConfig(t)

	var mu sync.Mutex
	var generated []string
	a, err := New(cfg, WithCallbacks(&pipeline.Callbacks{
		OnProofGenerated: func(ev pipeline.Event) {
			mu.Lock()
			defer mu.Unlock()
			generated = append(generated, ev.Fingerprint)
		},
	}))
	require.NoError(t, err)

	ctx := context.Background()
	fingerprint, err := a.Processor.Process(ctx, pipeline.Request{Data: []byte("hello"), MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, testutil.HelloFingerprint, fingerprint)
	a.Close()

	assert.True(t, a.Local.ProofExists(ctx, fingerprint))
	assert.True(t, a.Local.ProofIdentifierExists(ctx, fingerprint, storage.PublicKeyName))
	assert.True(t, a.Signer.HasIdentity())
	assert.Zero(t, a.Notary.Len())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{fingerprint}, generated)
}

func TestNewUsesGivenSigner(t *testing.T) {
	cfg := testConfig(t)
	signer := NewSigner(cfg)

	a, err := New(cfg, WithSigner(signer))
	require.NoError(t, err)
	defer a.Close()
	assert.Same(t, signer, a.Signer)
	assert.Equal(t, cfg.IdentityDir(), signer.Dir())
}

func TestNewBadStorageRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Root = ""

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestAPIServer(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	srv := a.APIServer("127.0.0.1:0")
	defer srv.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"proofs":0`)
}

func TestAPIServerImportRoots(t *testing.T) {
	cfg := testConfig(t)
	media := testutil.NewMediaFixture(t, "photo.jpg", []byte("hello"))
	cfg.ImportRoots = []string{filepath.Dir(media.Path)}
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	srv := a.APIServer("127.0.0.1:0")
	defer srv.Shutdown(context.Background())

	importPath := func(path string) int {
		body := `{"path":` + strconv.Quote(path) + `}`
		req := httptest.NewRequest(http.MethodPost, "/api/proofs/import", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusAccepted, importPath(media.Path))
	assert.Equal(t, http.StatusForbidden, importPath(filepath.Join(t.TempDir(), "other.jpg")))
}
