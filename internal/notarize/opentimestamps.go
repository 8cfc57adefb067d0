package notarize

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenTimestamps receipts start with this header followed by a version
// byte, the file hash op and the digest.
var otsMagic = []byte("\x00OpenTimestamps\x00\x00Proof\x00\xbf\x89\xe2\xe8\x84\xe8\x92\x94")

const (
	otsVersion   = 0x01
	otsOpSHA256  = 0x08
	otsMaxLength = 10000
)

// OpenTimestamps submits the fingerprint to an OpenTimestamps calendar and
// stores the pending timestamp as a detached .ots file.
type OpenTimestamps struct {
	name       string
	calendar   string
	httpClient *http.Client
}

// NewOpenTimestamps creates a client for the calendar at url.
func NewOpenTimestamps(name, url string) *OpenTimestamps {
	if name == "" {
		name = "opentimestamps"
	}
	return &OpenTimestamps{
		name:     name,
		calendar: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements Provider.
func (o *OpenTimestamps) Name() string { return o.name }

// FileExtension implements Provider.
func (o *OpenTimestamps) FileExtension() string { return ".ots" }

// Notarize implements Provider.
func (o *OpenTimestamps) Notarize(ctx context.Context, fingerprint, mimeType string, content []byte) (Result, error) {
	digest, err := hex.DecodeString(fingerprint)
	if err != nil || len(digest) != 32 {
		return Result{}, newError(o.name, CodeRequest, "fingerprint is not a SHA-256 digest")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.calendar+"/digest", bytes.NewReader(digest))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.opentimestamps.v1")
	req.Header.Set("User-Agent", "proofmode")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, otsMaxLength+1))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, newError(o.name, resp.StatusCode, "calendar returned %s", strings.TrimSpace(string(body)))
	}
	if len(body) == 0 || len(body) > otsMaxLength {
		return Result{}, newError(o.name, resp.StatusCode, "calendar returned %d bytes", len(body))
	}

	var receipt bytes.Buffer
	receipt.Write(otsMagic)
	receipt.WriteByte(otsVersion)
	receipt.WriteByte(otsOpSHA256)
	receipt.Write(digest)
	receipt.Write(body)
	return BytesResult(receipt.Bytes()), nil
}

// IsOTSReceipt reports whether data looks like a detached OpenTimestamps file.
func IsOTSReceipt(data []byte) bool {
	return bytes.HasPrefix(data, otsMagic)
}
