package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/lcrostarosa/proofmode/internal/hashing"
)

// ImportBody queues a file that already exists on this host.
type ImportBody struct {
	Path          string     `json:"path"`
	MimeType      string     `json:"mime_type"`
	Autogenerated bool       `json:"autogenerated"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// Validate requires an absolute path and cleans it.
func (b *ImportBody) Validate() error {
	switch {
	case b.Path == "":
		return errors.New("path is required")
	case !filepath.IsAbs(b.Path):
		return errors.New("path must be absolute")
	}
	if b.MimeType != "" {
		if _, _, err := mime.ParseMediaType(b.MimeType); err != nil {
			return fmt.Errorf("mime_type: %v", err)
		}
	}
	b.Path = filepath.Clean(b.Path)
	return nil
}

func decodeImport(r *http.Request) (ImportBody, error) {
	var body ImportBody
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt != "application/json" {
		return body, errors.New("content type must be application/json")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return body, errors.New("invalid request body")
	}
	return body, body.Validate()
}

// importRoots are the directories files may be imported from. Both sides
// are compared after resolving symlinks where the path exists.
type importRoots []string

func newImportRoots(dirs []string) importRoots {
	roots := make(importRoots, 0, len(dirs))
	for _, dir := range dirs {
		if !filepath.IsAbs(dir) {
			continue
		}
		roots = append(roots, resolve(dir))
	}
	return roots
}

// allows reports whether path lies inside a root. No roots allows nothing.
func (roots importRoots) allows(path string) bool {
	path = resolve(path)
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func resolve(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return filepath.Clean(path)
}

// pathFingerprint reads the {hash} path segment. On failure it has already
// written a 400.
func pathFingerprint(w http.ResponseWriter, r *http.Request) (string, bool) {
	h := r.PathValue("hash")
	if !hashing.Valid(h) {
		jsonError(w, http.StatusBadRequest, "hash must be 64 lowercase hex characters")
		return "", false
	}
	return h, true
}

// queryTime parses an optional RFC 3339 query parameter. On failure it has
// already written a 400.
func queryTime(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		jsonError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
		return nil, false
	}
	return &t, true
}
