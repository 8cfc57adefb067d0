// Package api provides the HTTP surface for submitting media and reading
// proof bundles.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/middleware"
	"github.com/lcrostarosa/proofmode/internal/pipeline"
	"github.com/lcrostarosa/proofmode/internal/signing"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

// DefaultMaxUploadBytes bounds a single media upload.
const DefaultMaxUploadBytes = 512 << 20

// Index lists the fingerprints with a stored bundle.
type Index interface {
	Fingerprints() ([]string, error)
}

// Identity describes the signing identity.
type Identity interface {
	Fingerprint() (string, error)
}

// Deps are the components the handlers use.
type Deps struct {
	Processor *pipeline.Processor
	Store     storage.Provider

	// Verifier checks bundle signatures. When nil the key published in each
	// bundle is used.
	Verifier signing.Verifier

	// Index and Identity are optional and only feed the status endpoints.
	Index    Index
	Identity Identity

	// Notaries names the configured notarization providers.
	Notaries []string
}

// Options tune the server.
type Options struct {
	RateLimit      *middleware.Limits
	MaxUploadBytes int64

	// ImportRoots are the absolute directories POST /api/proofs/import may
	// read from. Without any, every import is refused.
	ImportRoots []string
}

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	limiter    *middleware.ClientLimiter
	addr       string
	deps       Deps
	maxUpload  int64
	imports    importRoots
	started    time.Time
}

// NewServer creates a new API server
func NewServer(addr string, deps Deps, opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}
	s := &Server{
		addr:      addr,
		deps:      deps,
		maxUpload: opts.MaxUploadBytes,
		imports:   newImportRoots(opts.ImportRoots),
		limiter:   middleware.NewClientLimiter(limits(opts.RateLimit)),
		started:   time.Now(),
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      withLogging(withCORS(s.limiter.Handler(mux))),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		ErrorLog:     log.New(logging.StdLogger(), "", 0),
	}

	return s
}

// Stop releases background work owned by the server. The HTTP server
// itself is shut down separately.
func (s *Server) Stop() {
	s.limiter.Stop()
}

// Shutdown stops the HTTP server and then calls Stop.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.Stop()
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server's listen address
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying server, for lifecycle management.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

func limits(l *middleware.Limits) middleware.Limits {
	if l == nil {
		return middleware.DefaultLimits()
	}
	return *l
}
