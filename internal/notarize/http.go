package notarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WitnessRequest is the body posted to an HTTP witness.
type WitnessRequest struct {
	RequestID   string    `json:"request_id"`
	Hash        string    `json:"hash"`
	MimeType    string    `json:"mime_type,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// WitnessReceipt is stored when the witness does not return a body.
type WitnessReceipt struct {
	RequestID   string    `json:"request_id"`
	WitnessName string    `json:"witness_name"`
	Hash        string    `json:"hash"`
	ReceivedAt  time.Time `json:"received_at"`
	Status      int       `json:"status"`
}

// maxWitnessReply caps how much of a witness reply is kept as the receipt.
const maxWitnessReply = 1 << 20

// HTTPWitness posts fingerprints to a generic JSON witness endpoint. Any 2xx
// reply counts as notarized; a non-empty body becomes the receipt.
type HTTPWitness struct {
	name   string
	url    string
	header http.Header
	client *http.Client
}

// NewHTTPWitness returns a witness named name. apiKey, when set, is sent as
// a bearer token; headers are added to every request.
func NewHTTPWitness(name, url, apiKey string, headers map[string]string) *HTTPWitness {
	h := make(http.Header, len(headers)+2)
	h.Set("Content-Type", "application/json")
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &HTTPWitness{name: name, url: url, header: h, client: &http.Client{Timeout: 30 * time.Second}}
}

func (w *HTTPWitness) Name() string { return w.name }
func (w *HTTPWitness) FileExtension() string { return ".witness.json" }

// Notarize sends the fingerprint to the witness service.
func (w *HTTPWitness) Notarize(ctx context.Context, fingerprint, mimeType string, content []byte) (Result, error) {
	body := WitnessRequest{
		RequestID:   uuid.NewString(),
		Hash:        fingerprint,
		MimeType:    mimeType,
		SubmittedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build witness request: %w", err)
	}
	req.Header = w.header.Clone()

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post to witness: %w", err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxWitnessReply))
	if err != nil {
		return Result{}, fmt.Errorf("read witness reply: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Result{}, newError(w.name, resp.StatusCode, "witness returned %s", bytes.TrimSpace(reply))
	}
	if len(bytes.TrimSpace(reply)) > 0 {
		return TextResult(string(reply)), nil
	}

	// An empty reply still gets a receipt recording what was submitted.
	receipt, err := json.MarshalIndent(WitnessReceipt{
		RequestID:   body.RequestID,
		WitnessName: w.name,
		Hash:        fingerprint,
		ReceivedAt:  time.Now().UTC(),
		Status:      resp.StatusCode,
	}, "", "  ")
	if err != nil {
		return Result{}, err
	}
	return TextResult(string(receipt)), nil
}
