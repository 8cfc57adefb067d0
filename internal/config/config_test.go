// Package config tests
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

// --- Helper functions ---

func writeRawConfig(t *testing.T, dir string, raw map[string]interface{}) {
	t.Helper()
	data, err := json.MarshalIndent(raw, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), data, 0600))
}

// --- DefaultConfigDir tests ---

func TestDefaultConfigDir(t *testing.T) {
	t.Run("home based", func(t *testing.T) {
		t.Setenv("PROOFMODE_HOME", "")
		dir := DefaultConfigDir()
		assert.True(t, filepath.IsAbs(dir))
		assert.Contains(t, dir, ".proofmode")
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("PROOFMODE_HOME", "/srv/proofmode")
		assert.Equal(t, "/srv/proofmode", DefaultConfigDir())
	})
}

// --- Load tests ---

func TestLoad(t *testing.T) {
	t.Run("missing config is not initialized", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.True(t, errors.Is(err, apperrors.ErrNotInitialized))
	})

	t.Run("round trips a saved default", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Default(dir).Save())

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, cfg.ConfigDir)
		assert.Equal(t, dir, cfg.Storage.Root)
		assert.True(t, cfg.ProofEnabled)
		assert.True(t, cfg.IncludeLocation)
		assert.False(t, cfg.IncludeDeviceIDs)
		assert.Equal(t, DefaultPassphrase, cfg.Signing.Passphrase)
		require.Len(t, cfg.Notarization.Providers, 1)
		assert.Equal(t, "opentimestamps", cfg.Notarization.Providers[0].Type)
		assert.Equal(t, "127.0.0.1:8081", cfg.ListenAddr)
		assert.Empty(t, cfg.ImportRoots)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeRawConfig(t, dir, map[string]interface{}{
			"include_device_ids": true,
			"storage": map[string]interface{}{
				"remote": map[string]interface{}{
					"enabled": true,
					"bucket":  "proofs",
				},
			},
		})

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.True(t, cfg.IncludeDeviceIDs)
		assert.True(t, cfg.IncludeNetwork, "unset keys fall back to defaults")
		assert.Equal(t, "proofs", cfg.Storage.Remote.Bucket)
		assert.Equal(t, 30, cfg.Notarization.TimeoutSeconds)
	})

	t.Run("import roots", func(t *testing.T) {
		dir := t.TempDir()
		writeRawConfig(t, dir, map[string]interface{}{
			"import_roots": []string{"/srv/media", "/home/me/Pictures"},
		})

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"/srv/media", "/home/me/Pictures"}, cfg.ImportRoots)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		dir := t.TempDir()
		writeRawConfig(t, dir, map[string]interface{}{"include_location": true})
		t.Setenv("PROOFMODE_INCLUDE_LOCATION", "false")
		t.Setenv("PROOFMODE_STORAGE_REMOTE_SECRET_KEY", "from-env")

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.False(t, cfg.IncludeLocation)
		assert.Equal(t, "from-env", cfg.Storage.Remote.SecretKey)
	})

	t.Run("malformed file is a config error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0600))
		_, err := Load(dir)
		assert.True(t, errors.Is(err, apperrors.ErrConfig))
	})
}

// --- Save / Exists tests ---

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	assert.False(t, Exists(dir))

	cfg := Default(dir)
	require.NoError(t, cfg.Save())
	assert.True(t, Exists(dir))

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ConfigDir", "config dir is not serialized")
}

func TestRemoteStorageValidate(t *testing.T) {
	tests := []struct {
		name    string
		remote  RemoteStorageConfig
		wantErr bool
	}{
		{"disabled is always valid", RemoteStorageConfig{}, false},
		{"complete", RemoteStorageConfig{Enabled: true, Endpoint: "s3.example.org", AccessKey: "a", SecretKey: "s", Bucket: "b"}, false},
		{"blank bucket", RemoteStorageConfig{Enabled: true, Endpoint: "s3.example.org", AccessKey: "a", SecretKey: "s", Bucket: "  "}, true},
		{"nothing set", RemoteStorageConfig{Enabled: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.remote.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	err := RemoteStorageConfig{Enabled: true}.Validate()
	assert.Contains(t, err.Error(), "access_key, bucket, endpoint, secret_key")
}

func TestPassphraseAndIdentityDir(t *testing.T) {
	cfg := &Config{ConfigDir: "/etc/proofmode"}
	assert.Equal(t, DefaultPassphrase, cfg.Passphrase())
	assert.Equal(t, "/etc/proofmode/identity", cfg.IdentityDir())

	cfg.Signing.Passphrase = "s3cret"
	assert.Equal(t, "s3cret", cfg.Passphrase())
}
