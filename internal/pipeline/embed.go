package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/signing"
)

// embed writes content credentials into req.Path. The assertion is written
// to a temp file first, which is renamed over the original when the original
// is writable and lives in the same directory. Otherwise the output is kept
// next to the temp file as <name>.c2pa<ext>. The original is never written in
// place. Failures are logged only.
func (p *Processor) embed(ctx context.Context, certPath, keyPath string, req Request) {
	ext := filepath.Ext(req.Path)
	stem := strings.TrimSuffix(filepath.Base(req.Path), ext)

	tmp, err := createTemp(filepath.Dir(req.Path), stem, ext)
	if err != nil {
		logging.Warn("Cannot embed credentials", logging.Media(req.Path), logging.Err(err))
		return
	}

	err = p.deps.Signer.EmbedAssertion(ctx, signing.AssertionRequest{
		CertPath:             certPath,
		KeyPath:              keyPath,
		InputFile:            req.Path,
		OutputFile:           tmp,
		IdentityURI:          p.opts.IdentityURI,
		IdentityName:         p.opts.IdentityName,
		DirectCapture:        req.Autogenerated,
		AllowMachineLearning: p.opts.AllowMachineLearning,
	})
	if err != nil {
		os.Remove(tmp)
		logging.Warn("Failed to embed credentials", logging.Media(req.Path), logging.Err(err))
		return
	}

	err = replace(tmp, req.Path)
	if err == nil {
		logging.Debug("Embedded credentials", logging.Media(req.Path))
		return
	}

	kept := filepath.Join(filepath.Dir(tmp), stem+".c2pa"+ext)
	if err := os.Rename(tmp, kept); err != nil {
		os.Remove(tmp)
		logging.Warn("Failed to keep credentialed copy", logging.Media(req.Path), logging.Err(err))
		return
	}
	logging.Info("Media not replaced, credentialed copy kept",
		logging.Media(req.Path),
		logging.String("copy", kept),
		logging.String("reason", err.Error()),
	)
}

// createTemp reserves an output path in dir, or in the system temp dir when
// dir is not writable.
func createTemp(dir, stem, ext string) (string, error) {
	f, err := os.CreateTemp(dir, "."+stem+"-*"+ext)
	if err != nil {
		f, err = os.CreateTemp("", stem+"-*"+ext)
		if err != nil {
			return "", fmt.Errorf("create temp file: %w", err)
		}
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

var errNotReplaceable = errors.New("media is read-only or its directory is not writable")

// rename is swapped in tests.
var rename = os.Rename

// replace atomically moves tmp over dst, carrying over dst's permissions.
func replace(tmp, dst string) error {
	info, err := os.Stat(dst)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0200 == 0 || filepath.Dir(tmp) != filepath.Dir(dst) {
		return errNotReplaceable
	}
	if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
		return err
	}
	return rename(tmp, dst)
}
