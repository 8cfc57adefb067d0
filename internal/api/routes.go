package api

import "net/http"

// registerRoutes sets up all API routes using Go 1.22+ method-based routing
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health & status
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Submission
	mux.HandleFunc("POST /api/proofs", s.handleCreateProof)
	mux.HandleFunc("POST /api/proofs/import", s.handleImport)

	// Bundles
	mux.HandleFunc("GET /api/proofs", s.handleListProofs)
	mux.HandleFunc("GET /api/proofs/{hash}", s.handleGetProof)
	mux.HandleFunc("GET /api/proofs/{hash}/files/{name}", s.handleGetProofFile)
	mux.HandleFunc("GET /api/proofs/{hash}/verify", s.handleVerifyProof)
	mux.HandleFunc("GET /api/proofs/{hash}/bundle", s.handleExportProof)
}
