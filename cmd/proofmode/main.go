// Proofmode - signed, verifiable proof bundles for media files
package main

import (
	"github.com/lcrostarosa/proofmode/internal/cli"
	"github.com/lcrostarosa/proofmode/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

func main() {
	defer logging.Sync()
	cli.SetVersion(version)
	cli.Execute()
}
