package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

func newTestBackend(t *testing.T) *Local {
	t.Helper()
	return NewLocal(filepath.Join(t.TempDir(), "identity"),
		WithIdentity(IdentityInfo{Name: "Test User", Email: "test@example.org", URI: "https://example.org/me"}),
		WithPassphrase("password"),
	)
}

func TestEnsureIdentity(t *testing.T) {
	backend := newTestBackend(t)
	assert.False(t, backend.HasIdentity())

	certPath, keyPath, err := backend.EnsureIdentity("")
	require.NoError(t, err)
	assert.True(t, backend.HasIdentity())
	assert.Equal(t, filepath.Join(backend.Dir(), CertFile), certPath)
	assert.Equal(t, filepath.Join(backend.Dir(), KeyFile), keyPath)

	cert, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Contains(t, string(cert), "BEGIN CERTIFICATE")

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	pub, err := backend.PublicKey()
	require.NoError(t, err)

	t.Run("second call keeps the same identity", func(t *testing.T) {
		_, _, err := backend.EnsureIdentity("")
		require.NoError(t, err)

		again, err := os.ReadFile(certPath)
		require.NoError(t, err)
		assert.Equal(t, cert, again)

		pubAgain, err := backend.PublicKey()
		require.NoError(t, err)
		assert.Equal(t, pub, pubAgain)
	})

	t.Run("incomplete pair is not overwritten", func(t *testing.T) {
		require.NoError(t, os.Remove(keyPath))
		_, _, err := backend.EnsureIdentity("")
		assert.True(t, errors.Is(err, apperrors.ErrSigning))

		again, err := os.ReadFile(certPath)
		require.NoError(t, err)
		assert.Equal(t, cert, again)
	})
}

func TestDetachedSign(t *testing.T) {
	backend := newTestBackend(t)
	data := []byte("File Path,File Hash SHA256\n/tmp/a.jpg,abc\n")

	t.Run("armored signature verifies", func(t *testing.T) {
		sig, err := backend.DetachedSign(bytes.NewReader(data), "password", true)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(sig), "-----BEGIN PGP SIGNATURE-----"))

		require.NoError(t, backend.Verify(bytes.NewReader(data), sig, true))
	})

	t.Run("binary signature verifies", func(t *testing.T) {
		sig, err := backend.DetachedSign(bytes.NewReader(data), "password", false)
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(string(sig), "-----BEGIN"))

		require.NoError(t, backend.Verify(bytes.NewReader(data), sig, false))
	})

	t.Run("tampered data fails verification", func(t *testing.T) {
		sig, err := backend.DetachedSign(bytes.NewReader(data), "password", true)
		require.NoError(t, err)

		err = backend.Verify(bytes.NewReader([]byte("tampered")), sig, true)
		assert.True(t, errors.Is(err, apperrors.ErrVerification))
	})

	t.Run("wrong passphrase is a signing error", func(t *testing.T) {
		fresh := NewLocal(backend.Dir())
		_, err := fresh.DetachedSign(bytes.NewReader(data), "wrong", true)
		assert.True(t, errors.Is(err, apperrors.ErrSigning))
	})

	t.Run("public key verifier", func(t *testing.T) {
		sig, err := backend.DetachedSign(bytes.NewReader(data), "password", true)
		require.NoError(t, err)
		pub, err := backend.PublicKey()
		require.NoError(t, err)

		v := KeyVerifier{PublicKey: pub}
		assert.NoError(t, v.Verify(bytes.NewReader(data), sig, true))
	})
}

func TestClearIdentity(t *testing.T) {
	backend := newTestBackend(t)
	_, err := backend.DetachedSign(strings.NewReader("x"), "password", true)
	require.NoError(t, err)

	before, err := backend.Fingerprint()
	require.NoError(t, err)
	assert.Len(t, before, 40)

	require.NoError(t, backend.ClearIdentity())
	assert.False(t, backend.HasIdentity())

	_, err = backend.PublicKey()
	assert.True(t, errors.Is(err, apperrors.ErrNoIdentity))

	_, err = backend.DetachedSign(strings.NewReader("x"), "password", true)
	require.NoError(t, err)

	after, err := backend.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestBuildManifest(t *testing.T) {
	tests := []struct {
		name       string
		req        AssertionRequest
		wantAction string
		wantUse    string
	}{
		{
			name:       "direct capture without training",
			req:        AssertionRequest{InputFile: "/media/a.jpg", IdentityName: "Alice", DirectCapture: true},
			wantAction: "c2pa.created",
			wantUse:    "notAllowed",
		},
		{
			name:       "imported with training allowed",
			req:        AssertionRequest{InputFile: "/media/b.mp4", IdentityName: "Bob", AllowMachineLearning: true},
			wantAction: "c2pa.opened",
			wantUse:    "allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := BuildManifest(tt.req)
			assert.Equal(t, "es256", m.Alg)
			require.Len(t, m.Assertions, 3)

			data, err := json.Marshal(m)
			require.NoError(t, err)
			s := string(data)
			assert.Contains(t, s, tt.wantAction)
			assert.Contains(t, s, `"use":"`+tt.wantUse+`"`)
			assert.Contains(t, s, tt.req.IdentityName)
			if tt.req.DirectCapture {
				assert.Contains(t, s, "digitalCapture")
			} else {
				assert.NotContains(t, s, "digitalCapture")
			}
		})
	}
}

func TestEmbedAssertion(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(input, []byte("jpeg"), 0644))

	t.Run("tool missing", func(t *testing.T) {
		backend := NewLocal(dir, WithTool(NewC2PATool("c2patool-not-installed-here")))
		err := backend.EmbedAssertion(context.Background(), AssertionRequest{
			InputFile:  input,
			OutputFile: filepath.Join(dir, "photo.c2pa.jpg"),
		})
		assert.True(t, errors.Is(err, apperrors.ErrToolNotInstalled))
	})

	t.Run("output must differ from input", func(t *testing.T) {
		tool := NewC2PATool("sh")
		err := tool.Embed(context.Background(), AssertionRequest{InputFile: input, OutputFile: input})
		assert.True(t, errors.Is(err, apperrors.ErrSigning))
	})

	t.Run("non-zero exit carries stderr", func(t *testing.T) {
		script := filepath.Join(dir, "fake-c2patool")
		require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'bad manifest' >&2\nexit 3\n"), 0755))

		err := NewC2PATool(script).Embed(context.Background(), AssertionRequest{
			InputFile:  input,
			OutputFile: filepath.Join(dir, "out.jpg"),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrSigning))
		assert.Contains(t, err.Error(), "bad manifest")
	})

	t.Run("successful run", func(t *testing.T) {
		script := filepath.Join(dir, "copy-c2patool")
		// Arguments: input -m manifest -o output -f
		require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncp \"$1\" \"$5\"\n"), 0755))

		out := filepath.Join(dir, "copied.jpg")
		err := NewC2PATool(script).Embed(context.Background(), AssertionRequest{InputFile: input, OutputFile: out})
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "jpeg", string(data))
	})
}
