package api

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/lcrostarosa/proofmode/internal/bundle"
	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/pipeline"
)

// handleCreateProof generates a proof for the request body. The body is the
// media itself; its Content-Type is recorded as the media type.
func (s *Server) handleCreateProof(w http.ResponseWriter, r *http.Request) {
	createdAt, ok := queryTime(w, r, "created_at")
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "media too large")
			return
		}
		jsonError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 {
		jsonError(w, http.StatusBadRequest, "empty body")
		return
	}

	mimeType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	fingerprint, err := s.deps.Processor.Process(r.Context(), pipeline.Request{
		Data:      data,
		MimeType:  mimeType,
		CreatedAt: createdAt,
		Notes:     r.URL.Query().Get("notes"),
	})
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError || status == http.StatusNotFound {
			status = http.StatusUnprocessableEntity
		}
		jsonError(w, status, "no proof produced")
		return
	}

	jsonResponse(w, http.StatusCreated, ProofCreatedDTO{Fingerprint: fingerprint})
}

// handleImport queues a file that already exists under one of the import
// roots.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := decodeImport(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.imports.allows(body.Path) {
		jsonError(w, http.StatusForbidden, "path is outside the import roots")
		return
	}

	err = s.deps.Processor.Enqueue(pipeline.Request{
		Path:          body.Path,
		MimeType:      body.MimeType,
		Autogenerated: body.Autogenerated,
		CreatedAt:     body.CreatedAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, ImportAcceptedDTO{Path: body.Path, Status: "queued"})
}

func (s *Server) handleListProofs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		jsonError(w, http.StatusNotImplemented, "listing is not supported by this store")
		return
	}
	fingerprints, err := s.deps.Index.Fingerprints()
	if err != nil {
		writeError(w, r, err)
		return
	}
	sort.Strings(fingerprints)
	jsonResponse(w, http.StatusOK, ProofListDTO{Fingerprints: fingerprints, Count: len(fingerprints)})
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	h, ok := pathFingerprint(w, r)
	if !ok {
		return
	}
	ids, err := bundle.Artifacts(r.Context(), s.deps.Store, h)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, ProofDTO{Fingerprint: h, Artifacts: ids})
}

func (s *Server) handleGetProofFile(w http.ResponseWriter, r *http.Request) {
	h, ok := pathFingerprint(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	rc, err := s.deps.Store.GetInputStream(r.Context(), h, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", artifactContentType(name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logging.Warn("Failed to stream artifact", logging.Fingerprint(h), logging.String("name", name), logging.Err(err))
	}
}

func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	h, ok := pathFingerprint(w, r)
	if !ok {
		return
	}
	report, err := bundle.Verify(r.Context(), s.deps.Store, s.deps.Verifier, h, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

func (s *Server) handleExportProof(w http.ResponseWriter, r *http.Request) {
	h, ok := pathFingerprint(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := bundle.Export(r.Context(), s.deps.Store, h, &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": h + ".zip"}))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func artifactContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".csv"):
		return "text/csv; charset=utf-8"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".asc"):
		return "application/pgp-signature"
	case strings.HasSuffix(name, ".uri"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
