package cli

import (
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the HTTP API for submitting media and reading proof bundles.

On SIGINT or SIGTERM the server stops accepting requests, finishes the
proofs already queued and waits for notarization and mirroring.`,
	Example: `  # Listen on the configured address (default 127.0.0.1:8081)
  proofmode serve

  # Listen on a custom port
  proofmode serve --addr 127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runners.Pipeline().RunE(runServe),
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (default: config listen_addr or PROOFMODE_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	a, err := ctx.App()
	if err != nil {
		return err
	}

	addr := resolveAddr(cmd, ctx.Config)
	api := a.APIServer(addr)
	printServerInfo(ctx.Config, addr, a.Notary.Providers())

	gs := server.NewGracefulServer(api.HTTPServer(), &server.GracefulServerOptions{
		Drain: func() {
			api.Stop()
			a.Close()
		},
		Stopped: func() {
			_ = logging.Sync()
		},
	})
	return gs.ListenAndServe(cmd.Context())
}

func resolveAddr(cmd *cobra.Command, c *config.Config) string {
	addr, _ := cmd.Flags().GetString("addr")
	if addr != "" {
		return addr
	}

	addr = c.ListenAddr
	if addr == "" {
		addr = config.DefaultListenAddr
	}
	// PROOFMODE_PORT replaces only the port, so the configured interface
	// is kept.
	if port := os.Getenv("PROOFMODE_PORT"); port != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = ""
		}
		addr = net.JoinHostPort(host, port)
	}
	return addr
}

func printServerInfo(c *config.Config, addr string, notaries []string) {
	logging.Info("Proofmode server starting",
		logging.String("api", "http://localhost"+addr[strings.LastIndex(addr, ":"):]),
		logging.String("storage", c.Storage.Root),
		logging.Bool("proof_enabled", c.ProofEnabled),
		logging.Bool("remote", c.Storage.Remote.Enabled),
		logging.Any("notaries", notaries))

	logging.Info("Endpoints available:")
	logging.Info("  GET  /health                          - Health check")
	logging.Info("  GET  /api/status                      - Service status")
	logging.Info("  POST /api/proofs                      - Submit media bytes")
	logging.Info("  POST /api/proofs/import               - Queue a local file")
	logging.Info("  GET  /api/proofs                      - List bundles")
	logging.Info("  GET  /api/proofs/{hash}               - Bundle artifacts")
	logging.Info("  GET  /api/proofs/{hash}/files/{name}  - Download an artifact")
	logging.Info("  GET  /api/proofs/{hash}/verify        - Verify a bundle")
	logging.Info("  GET  /api/proofs/{hash}/bundle        - Export a bundle as zip")
}
