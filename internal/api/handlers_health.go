package api

import (
	"net/http"

	"github.com/lcrostarosa/proofmode/internal/logging"
)

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus returns the current service status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusDTO{
		Notaries:  s.deps.Notaries,
		StartedAt: s.started.UTC(),
	}
	if status.Notaries == nil {
		status.Notaries = []string{}
	}

	if s.deps.Index != nil {
		if fps, err := s.deps.Index.Fingerprints(); err == nil {
			status.Proofs = len(fps)
		} else {
			logging.Warn("Failed to count proofs", logging.Err(err))
		}
	}
	if s.deps.Identity != nil {
		if fp, err := s.deps.Identity.Fingerprint(); err == nil {
			status.IdentityFingerprint = fp
		}
	}

	jsonResponse(w, http.StatusOK, status)
}
