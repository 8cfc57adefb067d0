package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/bundle"
	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/logging"
)

var exportCmd = &cobra.Command{
	Use:   "export <fingerprint>",
	Short: "Write a proof bundle to a zip archive",
	Long: `Package every artifact of a bundle, together with instructions for
checking it by hand, into a zip archive that can be shared.`,
	Example: `  proofmode export <fingerprint> -o proof.zip`,
	Args:    cobra.ExactArgs(1),
	RunE:    runners.Pipeline().RunE(runExport),
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Archive path (default: <fingerprint>.zip)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	output := flags.String("output")
	if err := flags.Err(); err != nil {
		return err
	}

	fingerprint := strings.ToLower(args[0])
	if output == "" {
		output = fingerprint + ".zip"
	}

	a, err := ctx.App()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), ".proofmode-export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := bundle.Export(cmd.Context(), a.Store, fingerprint, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	logging.Debug("Exported bundle", logging.Fingerprint(fingerprint), logging.String("path", output))
	consoleFor(cmd).success("Wrote %s", output)
	return nil
}
