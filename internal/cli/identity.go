package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/logging"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show or manage the signing identity",
	Long: `Print the fingerprint of the signing key. --public-key prints the
armored key itself, --generate creates an identity if none exists and
--clear removes it so the next proof creates a new one.`,
	Example: `  proofmode identity
  proofmode identity --public-key > jane.asc
  proofmode identity --clear`,
	Args: cobra.NoArgs,
	RunE: runners.Config().RunE(runIdentity),
}

func init() {
	f := identityCmd.Flags()
	f.Bool("public-key", false, "Print the armored public key")
	f.Bool("generate", false, "Generate the identity if it does not exist")
	f.Bool("clear", false, "Delete the identity")
	identityCmd.MarkFlagsMutuallyExclusive("public-key", "generate", "clear")

	rootCmd.AddCommand(identityCmd)
}

func runIdentity(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	showKey := flags.Bool("public-key")
	generate := flags.Bool("generate")
	remove := flags.Bool("clear")
	if err := flags.Err(); err != nil {
		return err
	}

	signer := ctx.Signer()
	con := consoleFor(cmd)

	switch {
	case remove:
		if err := signer.ClearIdentity(); err != nil {
			return err
		}
		logging.Info("Signing identity removed", logging.String("dir", signer.Dir()))
		con.success("Identity removed")
		return nil
	case generate:
		if _, _, err := signer.EnsureIdentity(""); err != nil {
			return fmt.Errorf("failed to generate identity: %w", err)
		}
	case !ctx.HasIdentity():
		return runner.ErrNoIdentity
	}

	if showKey {
		key, err := signer.PublicKey()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(key)
		return err
	}

	fp, err := signer.Fingerprint()
	if err != nil {
		return err
	}
	con.fields(field{"Fingerprint", fp}, field{"Directory", signer.Dir()})
	return nil
}
