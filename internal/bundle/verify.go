// Package bundle verifies and exports stored proof bundles.
package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/hashing"
	"github.com/lcrostarosa/proofmode/internal/proof"
	"github.com/lcrostarosa/proofmode/internal/signing"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

// Check is the outcome of one verification step.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report is the result of verifying one bundle.
type Report struct {
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
	Duration    string    `json:"duration"`
	Artifacts   []string  `json:"artifacts"`
	Receipts    []string  `json:"receipts,omitempty"`
	Mirrors     []string  `json:"mirrors,omitempty"`
	Checks      []Check   `json:"checks"`
	Passed      bool      `json:"passed"`
}

func (r *Report) add(name string, err error) {
	c := Check{Name: name, Passed: err == nil}
	if err != nil {
		c.Detail = err.Error()
	}
	r.Checks = append(r.Checks, c)
}

func (r *Report) skip(name, reason string) {
	r.Checks = append(r.Checks, Check{Name: name, Passed: true, Detail: "skipped: " + reason})
}

// Failed returns the checks that did not pass.
func (r *Report) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Identifier returns the artifact name of a locator.
func Identifier(locator string) string {
	return path.Base(filepath.ToSlash(locator))
}

// Artifacts lists the artifact identifiers of a bundle.
func Artifacts(ctx context.Context, store storage.Provider, fingerprint string) ([]string, error) {
	if !hashing.Valid(fingerprint) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidFingerprint, fingerprint)
	}
	locators, err := store.GetProofSet(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(locators))
	for i, l := range locators {
		ids[i] = Identifier(l)
	}
	sort.Strings(ids)
	return ids, nil
}

// BundleVerifier returns a verifier for the public key published in the
// bundle.
func BundleVerifier(ctx context.Context, store storage.Provider, fingerprint string) (signing.Verifier, error) {
	key, err := storage.ReadAll(ctx, store, fingerprint, storage.PublicKeyName)
	if err != nil {
		return nil, err
	}
	return signing.KeyVerifier{PublicKey: key}, nil
}

// Verify checks a stored bundle. A nil verifier uses the bundle's own public
// key. When media is given its fingerprint and signature are checked too.
// The error is non-nil only when there is no bundle to verify.
func Verify(ctx context.Context, store storage.Provider, verifier signing.Verifier, fingerprint string, media io.ReadSeeker) (*Report, error) {
	start := time.Now()

	ids, err := Artifacts(ctx, store, fingerprint)
	if err != nil {
		return nil, err
	}
	if !store.ProofExists(ctx, fingerprint) {
		return nil, fmt.Errorf("%w: %s has no proof record", apperrors.ErrProofNotFound, fingerprint)
	}

	report := &Report{Fingerprint: fingerprint, Timestamp: start.UTC(), Artifacts: ids}
	classify(report, fingerprint, ids)

	if verifier == nil {
		v, err := BundleVerifier(ctx, store, fingerprint)
		report.add("public key published", err)
		if err == nil {
			verifier = v
		}
	}

	csvName := storage.ProofFileName(fingerprint)
	jsonName := storage.ProofJSONFileName(fingerprint)

	csvRecord, csvErr := readCSV(ctx, store, fingerprint, csvName)
	report.add("proof record readable", csvErr)
	jsonRecord, jsonErr := readJSON(ctx, store, fingerprint, jsonName)
	report.add("json record readable", jsonErr)

	if csvErr == nil {
		report.add("proof record hash", hashField(csvRecord, fingerprint))
	}
	if jsonErr == nil {
		report.add("json record hash", hashField(jsonRecord, fingerprint))
	}
	if csvErr == nil && jsonErr == nil {
		report.add("records agree", sameFields(csvRecord, jsonRecord))
	}

	for _, id := range []string{csvName, jsonName} {
		name := "signature " + storage.SignatureName(id)
		if verifier == nil {
			report.skip(name, "no public key")
			continue
		}
		report.add(name, verifyArtifact(ctx, store, verifier, fingerprint, id))
	}

	if media != nil {
		verifyMedia(ctx, report, store, verifier, fingerprint, media)
	}

	report.Passed = len(report.Failed()) == 0
	report.Duration = time.Since(start).String()
	return report, nil
}

func classify(r *Report, fingerprint string, ids []string) {
	known := map[string]bool{
		storage.ProofFileName(fingerprint):                            true,
		storage.ProofJSONFileName(fingerprint):                        true,
		storage.SignatureName(storage.ProofFileName(fingerprint)):     true,
		storage.SignatureName(storage.ProofJSONFileName(fingerprint)): true,
		storage.MediaSignatureName(fingerprint):                       true,
		storage.PublicKeyName:                                         true,
	}
	for _, id := range ids {
		switch {
		case known[id]:
		case strings.HasSuffix(id, ".uri"):
			r.Mirrors = append(r.Mirrors, id)
		case strings.HasPrefix(id, fingerprint):
			r.Receipts = append(r.Receipts, id)
		}
	}
}

func readCSV(ctx context.Context, store storage.Provider, fingerprint, id string) (*proof.Record, error) {
	data, err := storage.ReadAll(ctx, store, fingerprint, id)
	if err != nil {
		return nil, err
	}
	return proof.ParseCSV(string(data))
}

func readJSON(ctx context.Context, store storage.Provider, fingerprint, id string) (*proof.Record, error) {
	data, err := storage.ReadAll(ctx, store, fingerprint, id)
	if err != nil {
		return nil, err
	}
	return proof.ParseJSON(data)
}

func hashField(r *proof.Record, fingerprint string) error {
	if got := r.Value(proof.FieldFileHash); got != fingerprint {
		return fmt.Errorf("%w: record hash %q does not match %s", apperrors.ErrVerification, got, fingerprint)
	}
	return nil
}

func sameFields(a, b *proof.Record) error {
	af, bf := a.Fields(), b.Fields()
	if len(af) != len(bf) {
		return fmt.Errorf("%w: %d fields in csv, %d in json", apperrors.ErrVerification, len(af), len(bf))
	}
	for i := range af {
		if af[i] != bf[i] {
			return fmt.Errorf("%w: field %q differs", apperrors.ErrVerification, af[i].Name)
		}
	}
	return nil
}

func verifyArtifact(ctx context.Context, store storage.Provider, verifier signing.Verifier, fingerprint, id string) error {
	sig, err := storage.ReadAll(ctx, store, fingerprint, storage.SignatureName(id))
	if err != nil {
		return err
	}
	rc, err := store.GetInputStream(ctx, fingerprint, id)
	if err != nil {
		return err
	}
	defer rc.Close()
	return verifier.Verify(rc, sig, isArmored(sig))
}

func verifyMedia(ctx context.Context, r *Report, store storage.Provider, verifier signing.Verifier, fingerprint string, media io.ReadSeeker) {
	got, err := hashing.Reader(media)
	if err == nil && got != fingerprint {
		err = fmt.Errorf("%w: media hashes to %s", apperrors.ErrVerification, got)
	}
	r.add("media fingerprint", err)
	if err != nil {
		return
	}

	name := "signature " + storage.MediaSignatureName(fingerprint)
	if verifier == nil {
		r.skip(name, "no public key")
		return
	}
	sig, err := storage.ReadAll(ctx, store, fingerprint, storage.MediaSignatureName(fingerprint))
	if err == nil {
		_, err = media.Seek(0, io.SeekStart)
	}
	if err == nil {
		err = verifier.Verify(media, sig, isArmored(sig))
	}
	r.add(name, err)
}

func isArmored(sig []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(sig), []byte("-----BEGIN"))
}
