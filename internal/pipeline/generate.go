package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/hashing"
	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/proof"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

// generate runs one request through hashing, the duplicate check, signing,
// record writing and notarization. skipped is true when the bundle already
// existed.
func (p *Processor) generate(ctx context.Context, req Request) (fingerprint string, skipped bool, err error) {
	if !p.opts.ProofEnabled {
		return "", false, ErrDisabled
	}
	if err := missingDeps(p.deps); err != nil {
		return "", false, err
	}
	start := time.Now()

	media, fingerprint, content, err := p.hash(req)
	if err != nil {
		return "", false, err
	}
	log := logging.L().With(logging.Fingerprint(fingerprint), logging.Media(req.Ref()))

	store := p.deps.Store
	csvName := storage.ProofFileName(fingerprint)
	if store.ProofExists(ctx, fingerprint) {
		if store.ProofIdentifierExists(ctx, fingerprint, storage.SignatureName(csvName)) {
			log.Debug("Proof already exists")
			return fingerprint, true, nil
		}
		if err := p.resume(ctx, fingerprint, req.MimeType, content); err != nil {
			return "", false, err
		}
		return fingerprint, false, nil
	}

	certPath, keyPath, err := p.deps.Signer.EnsureIdentity(p.opts.IdentityDir)
	if err != nil {
		return "", false, fmt.Errorf("ensure identity: %w", err)
	}

	// The media signature covers the bytes that were hashed, so it is taken
	// before any credentials are embedded.
	mediaSig, err := p.signMedia(req.Path, content)
	if err != nil {
		return "", false, err
	}

	if p.opts.EmbedCredentials && req.Path != "" {
		p.embed(ctx, certPath, keyPath, req)
	}

	record := p.deps.Builder.Build(ctx, media, fingerprint, p.opts.recordOptions(req.Notes))
	writeHeader := !store.ProofExists(ctx, fingerprint)
	csvText, err := record.CSV(writeHeader)
	if err != nil {
		return "", false, fmt.Errorf("%w: encode proof record: %v", apperrors.ErrIO, err)
	}
	jsonText, err := json.Marshal(record)
	if err != nil {
		return "", false, fmt.Errorf("%w: encode proof record: %v", apperrors.ErrIO, err)
	}

	if err := store.SaveBytes(ctx, fingerprint, storage.MediaSignatureName(fingerprint), mediaSig); err != nil {
		return "", false, err
	}
	jsonName := storage.ProofJSONFileName(fingerprint)
	if err := store.SaveBytes(ctx, fingerprint, jsonName, jsonText); err != nil {
		return "", false, err
	}
	if err := p.signArtifact(ctx, fingerprint, jsonName); err != nil {
		return "", false, err
	}
	if err := store.SaveText(ctx, fingerprint, csvName, csvText); err != nil {
		return "", false, err
	}
	if err := p.signArtifact(ctx, fingerprint, csvName); err != nil {
		return "", false, err
	}
	p.publishKey(ctx, fingerprint)

	log.Info("Proof generated",
		logging.String("mime_type", req.MimeType),
		logging.Duration("duration", time.Since(start)),
	)

	p.notarize(ctx, fingerprint, req.MimeType, content)
	return fingerprint, false, nil
}

// resume finishes a bundle whose record was stored by an earlier run that
// failed before signing it. The media signature and the JSON record are
// always written before the CSV record.
func (p *Processor) resume(ctx context.Context, fingerprint, mimeType string, content []byte) error {
	if _, _, err := p.deps.Signer.EnsureIdentity(p.opts.IdentityDir); err != nil {
		return fmt.Errorf("ensure identity: %w", err)
	}
	for _, id := range []string{storage.ProofJSONFileName(fingerprint), storage.ProofFileName(fingerprint)} {
		if p.deps.Store.ProofIdentifierExists(ctx, fingerprint, storage.SignatureName(id)) {
			continue
		}
		if err := p.signArtifact(ctx, fingerprint, id); err != nil {
			return err
		}
	}
	p.publishKey(ctx, fingerprint)

	logging.Info("Proof completed from an unsigned record", logging.Fingerprint(fingerprint))
	p.notarize(ctx, fingerprint, mimeType, content)
	return nil
}

// hash computes the fingerprint and the file metadata recorded with it.
// content holds the hashed bytes when notaries will need them.
func (p *Processor) hash(req Request) (media proof.MediaInfo, fingerprint string, content []byte, err error) {
	media = proof.MediaInfo{Path: req.Path, MimeType: req.MimeType, CreatedAt: req.CreatedAt}

	if req.Path == "" {
		if req.Data == nil {
			return media, "", nil, fmt.Errorf("%w: request has neither path nor data", apperrors.ErrNotFound)
		}
		return media, hashing.Bytes(req.Data), req.Data, nil
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		return media, "", nil, fileError(req.Path, err)
	}
	media.Modified = info.ModTime()

	if !p.notarizes() {
		fingerprint, err = hashing.File(req.Path)
		return media, fingerprint, nil, err
	}
	content, err = os.ReadFile(req.Path)
	if err != nil {
		return media, "", nil, fileError(req.Path, err)
	}
	return media, hashing.Bytes(content), content, nil
}

func fileError(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, path)
	}
	return fmt.Errorf("%w: %v", apperrors.ErrIO, err)
}

// signMedia signs content when it was read while hashing, and the file at
// path otherwise.
func (p *Processor) signMedia(path string, content []byte) ([]byte, error) {
	var r io.Reader
	if content != nil {
		r = bytes.NewReader(content)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrIO, err)
		}
		defer f.Close()
		r = f
	}

	sig, err := p.deps.Signer.DetachedSign(r, p.opts.Passphrase, true)
	if err != nil {
		return nil, fmt.Errorf("sign media: %w", err)
	}
	return sig, nil
}

// signArtifact signs what the store actually holds for identifier and saves
// the signature next to it.
func (p *Processor) signArtifact(ctx context.Context, fingerprint, identifier string) error {
	rc, err := p.deps.Store.GetInputStream(ctx, fingerprint, identifier)
	if err != nil {
		return err
	}
	defer rc.Close()

	sig, err := p.deps.Signer.DetachedSign(rc, p.opts.Passphrase, true)
	if err != nil {
		return fmt.Errorf("sign %s: %w", identifier, err)
	}
	return p.deps.Store.SaveBytes(ctx, fingerprint, storage.SignatureName(identifier), sig)
}

// publishKey stores the public key with the bundle so it can be verified on
// its own.
func (p *Processor) publishKey(ctx context.Context, fingerprint string) {
	if p.deps.Store.ProofIdentifierExists(ctx, fingerprint, storage.PublicKeyName) {
		return
	}
	key, err := p.deps.Signer.PublicKey()
	if err == nil {
		err = p.deps.Store.SaveBytes(ctx, fingerprint, storage.PublicKeyName, key)
	}
	if err != nil {
		logging.Warn("Failed to publish public key", logging.Fingerprint(fingerprint), logging.Err(err))
	}
}
