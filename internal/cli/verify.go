package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/bundle"
	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/signing"
)

// ErrVerificationFailed is returned when at least one check fails.
var ErrVerificationFailed = errors.New("proof verification failed")

var verifyCmd = &cobra.Command{
	Use:   "verify <fingerprint>",
	Short: "Check a stored proof bundle",
	Long: `Check that the records of a bundle describe the given fingerprint,
agree with each other, and carry valid signatures. With --media the
media file itself is hashed and its signature checked.

Signatures are checked against the public key published in the bundle
unless --key names another one.`,
	Example: `  proofmode verify 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824
  proofmode verify <fingerprint> --media IMG_0001.jpg --key jane.asc`,
	Args: cobra.ExactArgs(1),
	RunE: runners.Pipeline().RunE(runVerify),
}

func init() {
	f := verifyCmd.Flags()
	f.String("media", "", "Media file to check against the bundle")
	f.String("key", "", "Armored public key to verify with")
	f.Bool("json", false, "Print the report as JSON")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	mediaPath := flags.File("media")
	keyPath := flags.File("key")
	asJSON := flags.Bool("json")
	if err := flags.Err(); err != nil {
		return err
	}

	var verifier signing.Verifier
	if keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		verifier = signing.KeyVerifier{PublicKey: key}
	}

	var media io.ReadSeeker
	if mediaPath != "" {
		f, err := os.Open(mediaPath)
		if err != nil {
			return fmt.Errorf("open media: %w", err)
		}
		defer f.Close()
		media = f
	}

	a, err := ctx.App()
	if err != nil {
		return err
	}

	fingerprint := strings.ToLower(args[0])
	report, err := bundle.Verify(cmd.Context(), a.Store, verifier, fingerprint, media)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(consoleFor(cmd), report)
	}

	if !report.Passed {
		return fmt.Errorf("%w: %d of %d checks", ErrVerificationFailed, len(report.Failed()), len(report.Checks))
	}
	return nil
}

func printReport(con console, r *bundle.Report) {
	con.heading("Proof " + r.Fingerprint)
	rows := []field{{"Artifacts", len(r.Artifacts)}}
	if len(r.Receipts) > 0 {
		rows = append(rows, field{"Receipts", strings.Join(r.Receipts, ", ")})
	}
	if len(r.Mirrors) > 0 {
		rows = append(rows, field{"Mirrors", strings.Join(r.Mirrors, ", ")})
	}
	con.fields(rows...)

	con.rule()
	for _, c := range r.Checks {
		line := c.Name
		if c.Detail != "" {
			line += " (" + c.Detail + ")"
		}
		if c.Passed {
			con.success("%s", line)
		} else {
			con.fail("%s", line)
		}
	}
	con.rule()

	if r.Passed {
		con.success("All checks passed in %s", r.Duration)
	} else {
		con.warn("%d checks failed", len(r.Failed()))
	}
}
