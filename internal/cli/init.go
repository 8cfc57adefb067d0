package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/app"
	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/logging"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration and signing identity",
	Long: `Write a default configuration and generate the OpenPGP key and
content-credentials certificate used to sign proofs.`,
	Example: `  proofmode init --name "Jane Doe" --uri https://example.org/jane

  # Keep proofs somewhere other than the config directory
  proofmode init --storage /srv/proofs

  # Choose a passphrase for the private key
  proofmode init --passphrase 'correct horse battery staple'`,
	Args: cobra.NoArgs,
	RunE: runners.Uninitialized().RunE(runInit),
}

func init() {
	f := initCmd.Flags()
	f.StringP("name", "n", "", "Name bound into the signing identity")
	f.String("uri", "", "URI bound into the signing identity")
	f.String("passphrase", "", "Passphrase protecting the private key")
	f.String("storage", "", "Directory proof bundles are written to")
	f.Bool("skip-identity", false, "Do not generate the signing identity now")
	f.Bool("force", false, "Overwrite an existing configuration")

	rootCmd.AddCommand(initCmd)
}

func runInit(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	name := flags.String("name")
	uri := flags.String("uri")
	passphrase := flags.String("passphrase")
	storageRoot := flags.String("storage")
	skipIdentity := flags.Bool("skip-identity")
	force := flags.Bool("force")
	if err := flags.Err(); err != nil {
		return err
	}

	dir := configDir()
	if config.Exists(dir) && !force {
		return fmt.Errorf("already initialized in %s - use --force to overwrite", dir)
	}

	c := config.Default(dir)
	if name != "" {
		c.Signing.IdentityName = name
	}
	c.Signing.IdentityURI = uri
	if passphrase != "" {
		c.Signing.Passphrase = passphrase
	}
	if storageRoot != "" {
		c.Storage.Root = storageRoot
	}

	if err := c.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	logging.Info("Configuration written", logging.String("dir", dir))

	con := consoleFor(cmd)
	con.success("Initialized proofmode in %s", dir)
	con.printf("Proofs are stored in %s", c.Storage.Root)

	if skipIdentity {
		con.printf("Generate the signing identity later with: proofmode identity --generate")
		return nil
	}

	signer := app.NewSigner(c)
	if _, _, err := signer.EnsureIdentity(""); err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}
	fp, err := signer.Fingerprint()
	if err != nil {
		return err
	}
	con.success("Signing identity %s", fp)
	return nil
}
