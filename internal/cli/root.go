// Package cli implements the proofmode command line.
package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/config"
	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/logging"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// App state
	cfg    *config.Config
	cfgErr error

	runners = runner.NewBuilder(func() (*config.Config, error) { return cfg, cfgErr })
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "proofmode",
	Short: "Signed, verifiable proof bundles for media files",
	Long: `Proofmode fingerprints media files, records the context they were
captured in, and signs everything with a local OpenPGP identity.
Bundles can be notarized with third-party timestamping services,
mirrored to S3-compatible storage, verified and exported.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

// SetVersion sets the version string
func SetVersion(v string) {
	Version = v
	rootCmd.Version = v
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	f := rootCmd.PersistentFlags()
	f.String("home", "", "Configuration directory (default: ~/.proofmode or PROOFMODE_HOME)")
	f.BoolP("verbose", "v", false, "Enable debug logging")
}

func initConfig() {
	home, _ := rootCmd.PersistentFlags().GetString("home")
	cfg, cfgErr = config.Load(home)
	if errors.Is(cfgErr, apperrors.ErrNotInitialized) {
		// Commands report this themselves through runner.ErrNotInitialized.
		cfg, cfgErr = nil, nil
	}
}

func initLogging() {
	logCfg := logging.DefaultConfig()
	if cfg != nil {
		logCfg = logging.Config{
			Level:       cfg.Log.Level,
			JSON:        cfg.Log.JSON,
			Development: cfg.Log.Development,
		}
	}
	if verbose, _ := rootCmd.PersistentFlags().GetBool("verbose"); verbose {
		logCfg.Level = "debug"
	}
	if err := logging.Reconfigure(logCfg); err != nil {
		logging.Warn("Keeping default logger", logging.Err(err))
	}
}

// configDir is where init writes a new configuration.
func configDir() string {
	if home, _ := rootCmd.PersistentFlags().GetString("home"); home != "" {
		return home
	}
	return config.DefaultConfigDir()
}
