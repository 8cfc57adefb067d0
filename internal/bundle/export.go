package bundle

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/hashing"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

// InstructionsName is the readme added to every exported bundle.
const InstructionsName = "HowToVerifyProofData.txt"

const instructions = `This archive holds the proof data for one media file, named by the
SHA-256 hash of the file's bytes:

  %[1]s.proof.csv        proof record (canonical form)
  %[1]s.proof.json       the same record as JSON
  *.asc                  OpenPGP detached signatures
  %[1]s.asc              signature of the media file itself
  pubkey.asc             public key of the signer
  other %[1]s.* files    notarization receipts, when present

To verify:

1. Hash the media file and compare with the archive name:
     sha256sum photo.jpg

2. Import the public key and check each signature:
     gpg --import pubkey.asc
     gpg --verify %[1]s.proof.csv.asc %[1]s.proof.csv
     gpg --verify %[1]s.asc photo.jpg

3. OpenTimestamps receipts (.ots) can be checked with:
     ots verify %[1]s.ots
`

// Export writes every artifact of a bundle into a zip archive on w.
func Export(ctx context.Context, store storage.Provider, fingerprint string, w io.Writer) error {
	if !hashing.Valid(fingerprint) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidFingerprint, fingerprint)
	}
	locators, err := store.GetProofSet(ctx, fingerprint)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	modified := time.Now().UTC()

	for _, locator := range locators {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := Identifier(locator)
		if err := addArtifact(ctx, zw, store, fingerprint, locator, id, modified); err != nil {
			zw.Close()
			return err
		}
	}

	hdr := &zip.FileHeader{Name: path.Join(fingerprint, InstructionsName), Method: zip.Deflate, Modified: modified}
	fw, err := zw.CreateHeader(hdr)
	if err == nil {
		_, err = fmt.Fprintf(fw, instructions, fingerprint)
	}
	if err != nil {
		zw.Close()
		return fmt.Errorf("%w: write instructions: %v", apperrors.ErrIO, err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: finish archive: %v", apperrors.ErrIO, err)
	}
	return nil
}

func addArtifact(ctx context.Context, zw *zip.Writer, store storage.Provider, fingerprint, locator, id string, modified time.Time) error {
	rc, err := store.GetProofItem(ctx, locator)
	if err != nil {
		return err
	}
	defer rc.Close()

	hdr := &zip.FileHeader{
		Name:     path.Join(fingerprint, id),
		Method:   compressionFor(id),
		Modified: modified,
	}
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("%w: add %s: %v", apperrors.ErrIO, id, err)
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return fmt.Errorf("%w: add %s: %v", apperrors.ErrIO, id, err)
	}
	return nil
}

// compressionFor deflates text artifacts and stores binary receipts as is.
func compressionFor(id string) uint16 {
	for _, ext := range []string{".csv", ".json", ".asc", ".uri", ".txt"} {
		if strings.HasSuffix(id, ext) {
			return zip.Deflate
		}
	}
	return zip.Store
}
