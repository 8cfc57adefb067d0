package cli

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/hashing"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI against home and returns what it printed.
func execute(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--home", home}, args...))
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// initHome initializes a configuration that never reaches the network.
func initHome(t *testing.T, extra ...string) string {
	t.Helper()
	home := t.TempDir()
	_, err := execute(t, home, append([]string{"init", "--name", "Tester"}, extra...)...)
	require.NoError(t, err)

	c, err := config.Load(home)
	require.NoError(t, err)
	c.AutoNotarize = false
	c.Notarization.Providers = nil
	require.NoError(t, c.Save())
	return home
}

func writeMedia(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestStatusUninitialized(t *testing.T) {
	out, err := execute(t, t.TempDir(), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not initialized")
}

func TestCommandsRequireInit(t *testing.T) {
	home := t.TempDir()
	for _, args := range [][]string{
		{"proof", writeMedia(t, "a.txt", "a")},
		{"verify", strings.Repeat("a", 64)},
		{"export", strings.Repeat("a", 64)},
		{"identity"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := execute(t, home, args...)
			assert.ErrorIs(t, err, runner.ErrNotInitialized)
		})
	}
}

func TestInit(t *testing.T) {
	home := t.TempDir()
	storageRoot := t.TempDir()

	out, err := execute(t, home, "init", "--name", "Jane", "--uri", "https://example.org/jane", "--storage", storageRoot)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized proofmode in "+home)
	assert.Contains(t, out, "Signing identity")

	c, err := config.Load(home)
	require.NoError(t, err)
	assert.Equal(t, "Jane", c.Signing.IdentityName)
	assert.Equal(t, "https://example.org/jane", c.Signing.IdentityURI)
	assert.Equal(t, storageRoot, c.Storage.Root)

	_, err = execute(t, home, "init")
	assert.ErrorContains(t, err, "already initialized")

	_, err = execute(t, home, "init", "--force", "--skip-identity")
	assert.NoError(t, err)
}

func TestProofVerifyExport(t *testing.T) {
	home := initHome(t)
	media := writeMedia(t, "photo.jpg", "hello")
	fingerprint := hashing.Bytes([]byte("hello"))

	out, err := execute(t, home, "proof", "--notes", "test note", media)
	require.NoError(t, err)
	assert.Contains(t, out, fingerprint)

	out, err = execute(t, home, "proof", media)
	require.NoError(t, err, "a duplicate is not an error")
	assert.Contains(t, out, fingerprint)

	out, err = execute(t, home, "verify", fingerprint, "--media", media)
	require.NoError(t, err, out)
	assert.Contains(t, out, "All checks passed")

	other := writeMedia(t, "other.jpg", "not hello")
	out, err = execute(t, home, "verify", fingerprint, "--media", other)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, out, "❌")

	archive := filepath.Join(t.TempDir(), "bundle.zip")
	_, err = execute(t, home, "export", fingerprint, "-o", archive)
	require.NoError(t, err)
	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, fingerprint+"/"+storage.ProofFileName(fingerprint))

	out, err = execute(t, home, "status")
	require.NoError(t, err)
	assert.Regexp(t, `Bundles:\s+1\n`, out)
}

func TestVerifyJSON(t *testing.T) {
	home := initHome(t)
	media := writeMedia(t, "photo.jpg", "hello")
	fingerprint := hashing.Bytes([]byte("hello"))
	_, err := execute(t, home, "proof", media)
	require.NoError(t, err)

	out, err := execute(t, home, "verify", fingerprint, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"fingerprint": "`+fingerprint+`"`)
	assert.Contains(t, out, `"passed": true`)
}

func TestVerifyTamperedBundle(t *testing.T) {
	home := initHome(t)
	media := writeMedia(t, "photo.jpg", "hello")
	fingerprint := hashing.Bytes([]byte("hello"))
	_, err := execute(t, home, "proof", media)
	require.NoError(t, err)

	c, err := config.Load(home)
	require.NoError(t, err)
	local, err := storage.NewLocal(c.Storage.Root)
	require.NoError(t, err)
	csvPath := filepath.Join(local.Dir(fingerprint), storage.ProofFileName(fingerprint))
	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(csvPath, append(raw, ' '), 0644))

	_, err = execute(t, home, "verify", fingerprint)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestProofDisabled(t *testing.T) {
	home := initHome(t)
	c, err := config.Load(home)
	require.NoError(t, err)
	c.ProofEnabled = false
	require.NoError(t, c.Save())

	_, err = execute(t, home, "proof", writeMedia(t, "a.txt", "a"))
	assert.ErrorIs(t, err, runner.ErrProofDisabled)
}

func TestProofMissingFile(t *testing.T) {
	home := initHome(t)

	_, err := execute(t, home, "proof", filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorContains(t, err, "1 of 1 files failed")
}

func TestIdentity(t *testing.T) {
	home := initHome(t)

	out, err := execute(t, home, "identity")
	require.NoError(t, err)
	assert.Contains(t, out, "Fingerprint:")

	out, err = execute(t, home, "identity", "--public-key")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN PGP PUBLIC KEY BLOCK")

	_, err = execute(t, home, "identity", "--clear")
	require.NoError(t, err)
	_, err = execute(t, home, "identity")
	assert.ErrorIs(t, err, runner.ErrNoIdentity)

	out, err = execute(t, home, "identity", "--generate")
	require.NoError(t, err)
	assert.Contains(t, out, "Fingerprint:")
}

func TestResolveAddr(t *testing.T) {
	tests := []struct {
		name   string
		listen string
		flag   string
		env    string
		want   string
	}{
		{"config", ":9000", "", "", ":9000"},
		{"default is loopback", "", "", "", config.DefaultListenAddr},
		{"env port", ":9000", "", "7000", ":7000"},
		{"env port keeps host", "127.0.0.1:9000", "", "7000", "127.0.0.1:7000"},
		{"flag wins", ":9000", "127.0.0.1:6000", "7000", "127.0.0.1:6000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PROOFMODE_PORT", tt.env)
			cmd := &cobra.Command{}
			cmd.Flags().String("addr", "", "")
			if tt.flag != "" {
				require.NoError(t, cmd.Flags().Set("addr", tt.flag))
			}
			assert.Equal(t, tt.want, resolveAddr(cmd, &config.Config{ListenAddr: tt.listen}))
		})
	}
}
