package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

// Local stores bundles under <root>/proofmode/<fingerprint>/<identifier>.
type Local struct {
	basePath string
}

// NewLocal creates the store, creating its base directory.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: storage root is required", apperrors.ErrConfig)
	}
	abs, err := filepath.Abs(filepath.Join(root, "proofmode"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("%w: create storage directory: %v", apperrors.ErrIO, err)
	}
	return &Local{basePath: abs}, nil
}

// BasePath returns the directory holding every bundle.
func (l *Local) BasePath() string {
	return l.basePath
}

// Dir returns the directory of one bundle.
func (l *Local) Dir(fingerprint string) string {
	return filepath.Join(l.basePath, fingerprint)
}

// Locator implements Provider. Local locators are absolute paths.
func (l *Local) Locator(fingerprint, identifier string) string {
	return filepath.Join(l.basePath, fingerprint, identifier)
}

func (l *Local) path(fingerprint, identifier string) (string, error) {
	if err := validate(fingerprint, identifier); err != nil {
		return "", err
	}
	return l.Locator(fingerprint, identifier), nil
}

// SaveStream implements Provider. The artifact appears only once complete.
func (l *Local) SaveStream(ctx context.Context, fingerprint, identifier string, r io.Reader) error {
	filePath, err := l.path(fingerprint, identifier)
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create directory: %v", apperrors.ErrIO, err)
	}

	// Write to temp file first, then rename (atomic write)
	file, err := os.CreateTemp(dir, "."+identifier+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create file: %v", apperrors.ErrIO, err)
	}
	tmpPath := file.Name()

	_, err = io.Copy(file, r)
	if err == nil {
		err = file.Sync()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %v", apperrors.ErrIO, identifier, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod %s: %v", apperrors.ErrIO, identifier, err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: finalize %s: %v", apperrors.ErrIO, identifier, err)
	}
	return nil
}

// SaveBytes implements Provider.
func (l *Local) SaveBytes(ctx context.Context, fingerprint, identifier string, data []byte) error {
	return l.SaveStream(ctx, fingerprint, identifier, bytes.NewReader(data))
}

// SaveText implements Provider.
func (l *Local) SaveText(ctx context.Context, fingerprint, identifier, text string) error {
	return l.SaveStream(ctx, fingerprint, identifier, strings.NewReader(text))
}

// GetInputStream implements Provider.
func (l *Local) GetInputStream(ctx context.Context, fingerprint, identifier string) (io.ReadCloser, error) {
	filePath, err := l.path(fingerprint, identifier)
	if err != nil {
		return nil, err
	}
	return openFile(filePath)
}

func openFile(filePath string) (io.ReadCloser, error) {
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProofNotFound, filepath.Base(filePath))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", apperrors.ErrIO, filepath.Base(filePath), err)
	}
	return file, nil
}

// ProofExists implements Provider.
func (l *Local) ProofExists(ctx context.Context, fingerprint string) bool {
	return l.ProofIdentifierExists(ctx, fingerprint, ProofFileName(fingerprint))
}

// ProofIdentifierExists implements Provider.
func (l *Local) ProofIdentifierExists(ctx context.Context, fingerprint, identifier string) bool {
	filePath, err := l.path(fingerprint, identifier)
	if err != nil {
		return false
	}
	info, err := os.Stat(filePath)
	return err == nil && info.Mode().IsRegular()
}

// GetProofSet implements Provider.
func (l *Local) GetProofSet(ctx context.Context, fingerprint string) ([]string, error) {
	if err := validate(fingerprint, ""); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.Dir(fingerprint))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProofNotFound, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", apperrors.ErrIO, fingerprint, err)
	}

	var locators []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isValidIdentifier(entry.Name()) {
			continue
		}
		locators = append(locators, l.Locator(fingerprint, entry.Name()))
	}
	sort.Strings(locators)
	return locators, nil
}

// GetProofItem implements Provider. Locators outside the store are rejected.
func (l *Local) GetProofItem(ctx context.Context, locator string) (io.ReadCloser, error) {
	clean := filepath.Clean(locator)
	rel, err := filepath.Rel(l.basePath, clean)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidIdentifier, locator)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidIdentifier, locator)
	}
	if err := validate(parts[0], parts[1]); err != nil {
		return nil, err
	}
	return openFile(clean)
}

// Fingerprints lists every fingerprint with a bundle directory.
func (l *Local) Fingerprints() ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: list bundles: %v", apperrors.ErrIO, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() && validate(entry.Name(), "") == nil {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
