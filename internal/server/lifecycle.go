// Package server runs the HTTP API until the process is asked to stop.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lcrostarosa/proofmode/internal/logging"
)

// ShutdownTimeout bounds how long in-flight requests get to finish.
const ShutdownTimeout = 10 * time.Second

// GracefulServer wraps an http.Server with ordered shutdown.
type GracefulServer struct {
	server  *http.Server
	timeout time.Duration

	// drain runs once the listener has stopped accepting requests,
	// typically to finish queued proof jobs.
	drain func()

	// stopped runs last.
	stopped func()
}

// GracefulServerOptions configures a GracefulServer
type GracefulServerOptions struct {
	// Drain is called after HTTP shutdown and before Stopped.
	Drain func()
	// Stopped is called after everything else has shut down.
	Stopped func()
	// Timeout overrides ShutdownTimeout.
	Timeout time.Duration
}

// NewGracefulServer creates a server wrapper with graceful shutdown
func NewGracefulServer(server *http.Server, opts *GracefulServerOptions) *GracefulServer {
	gs := &GracefulServer{server: server, timeout: ShutdownTimeout}
	if opts != nil {
		gs.drain = opts.Drain
		gs.stopped = opts.Stopped
		if opts.Timeout > 0 {
			gs.timeout = opts.Timeout
		}
	}
	return gs
}

// ListenAndServe listens on the server's address and blocks until ctx is
// done or SIGINT/SIGTERM arrives, then shuts down.
func (gs *GracefulServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}
	return gs.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (gs *GracefulServer) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logging.Info("Listening", logging.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		logging.Error("Server error", logging.Err(err))
		gs.finish()
		return err
	case <-ctx.Done():
		return gs.Shutdown()
	}
}

// Shutdown stops accepting requests, waits for in-flight ones, then drains.
func (gs *GracefulServer) Shutdown() error {
	logging.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	err := gs.server.Shutdown(ctx)
	if err != nil {
		logging.Warn("HTTP shutdown incomplete", logging.Err(err))
	}
	gs.finish()

	logging.Info("Server stopped")
	return err
}

func (gs *GracefulServer) finish() {
	if gs.drain != nil {
		gs.drain()
	}
	if gs.stopped != nil {
		gs.stopped()
	}
}
