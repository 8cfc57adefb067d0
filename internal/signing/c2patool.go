package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

const (
	defaultToolName    = "c2patool"
	claimGenerator     = "proofmode/1.0"
	digitalCaptureType = "http://cv.iptc.org/newscodes/digitalsourcetype/digitalCapture"
)

// C2PATool wraps the c2patool command line program.
type C2PATool struct {
	Path string
}

// NewC2PATool returns a wrapper for the binary at path, or for c2patool on
// PATH when path is empty.
func NewC2PATool(path string) *C2PATool {
	if path == "" {
		path = defaultToolName
	}
	return &C2PATool{Path: path}
}

// IsInstalled checks if the tool is available
func (t *C2PATool) IsInstalled() bool {
	_, err := exec.LookPath(t.Path)
	return err == nil
}

// Version returns the tool version
func (t *C2PATool) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, t.Path, "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// Embed writes req.OutputFile, a copy of req.InputFile with a signed manifest.
func (t *C2PATool) Embed(ctx context.Context, req AssertionRequest) error {
	if !t.IsInstalled() {
		return apperrors.ErrToolNotInstalled
	}
	if req.InputFile == "" || req.OutputFile == "" {
		return fmt.Errorf("%w: input and output files are required", apperrors.ErrSigning)
	}
	if req.InputFile == req.OutputFile {
		return fmt.Errorf("%w: output must differ from input", apperrors.ErrSigning)
	}

	manifest, err := json.Marshal(BuildManifest(req))
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", apperrors.ErrSigning, err)
	}

	manifestFile, err := os.CreateTemp("", "manifest-*.json")
	if err != nil {
		return fmt.Errorf("%w: write manifest: %v", apperrors.ErrSigning, err)
	}
	defer os.Remove(manifestFile.Name())
	if _, err := manifestFile.Write(manifest); err != nil {
		manifestFile.Close()
		return fmt.Errorf("%w: write manifest: %v", apperrors.ErrSigning, err)
	}
	if err := manifestFile.Close(); err != nil {
		return fmt.Errorf("%w: write manifest: %v", apperrors.ErrSigning, err)
	}

	args := []string{req.InputFile, "-m", manifestFile.Name(), "-o", req.OutputFile, "-f"}
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Dir = filepath.Dir(req.InputFile)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: c2patool exited %d: %s", apperrors.ErrSigning, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%w: c2patool: %v", apperrors.ErrSigning, err)
	}
	return nil
}

// Manifest is the c2patool manifest definition.
type Manifest struct {
	Alg            string      `json:"alg"`
	PrivateKey     string      `json:"private_key"`
	SignCert       string      `json:"sign_cert"`
	ClaimGenerator string      `json:"claim_generator"`
	Title          string      `json:"title,omitempty"`
	Assertions     []Assertion `json:"assertions"`
}

// Assertion is a labelled manifest assertion.
type Assertion struct {
	Label string      `json:"label"`
	Data  interface{} `json:"data"`
}

// BuildManifest describes authorship, the capture action and the
// training/mining policy for req.
func BuildManifest(req AssertionRequest) Manifest {
	author := map[string]interface{}{
		"@type": "Person",
		"name":  req.IdentityName,
	}
	if req.IdentityURI != "" {
		author["identifier"] = req.IdentityURI
	}

	action := map[string]interface{}{"action": "c2pa.opened"}
	if req.DirectCapture {
		action = map[string]interface{}{
			"action":            "c2pa.created",
			"digitalSourceType": digitalCaptureType,
		}
	}

	use := "notAllowed"
	if req.AllowMachineLearning {
		use = "allowed"
	}
	entries := map[string]interface{}{}
	for _, key := range []string{
		"c2pa.ai_generative_training",
		"c2pa.ai_inference",
		"c2pa.ai_training",
		"c2pa.data_mining",
	} {
		entries[key] = map[string]string{"use": use}
	}

	return Manifest{
		Alg:            "es256",
		PrivateKey:     req.KeyPath,
		SignCert:       req.CertPath,
		ClaimGenerator: claimGenerator,
		Title:          filepath.Base(req.InputFile),
		Assertions: []Assertion{
			{
				Label: "stds.schema-org.CreativeWork",
				Data: map[string]interface{}{
					"@context": "https://schema.org",
					"@type":    "CreativeWork",
					"author":   []interface{}{author},
				},
			},
			{
				Label: "c2pa.actions",
				Data:  map[string]interface{}{"actions": []interface{}{action}},
			},
			{
				Label: "c2pa.training-mining",
				Data:  map[string]interface{}{"entries": entries},
			},
		},
	}
}
