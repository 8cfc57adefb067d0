package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/notarize"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status",
	Long:  `Display the current proofmode configuration, identity and store.`,
	Args:  cobra.NoArgs,
	RunE:  runners.Uninitialized().RunE(runStatus),
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	con := consoleFor(cmd)
	switch {
	case ctx.ConfigErr != nil:
		return ctx.ConfigErr
	case ctx.Config == nil:
		con.printf("Proofmode Status: Not initialized\n\nTo get started:\n  proofmode init --name <name>")
		return nil
	}

	c := ctx.Config
	con.heading("Proofmode Status")

	mirror := "off"
	if r := c.Storage.Remote; r.Enabled {
		mirror = fmt.Sprintf("s3://%s (%s)", r.Bucket, r.Endpoint)
	}
	con.fields(
		field{"Config", c.ConfigDir},
		field{"Storage", c.Storage.Root},
		field{"Mirror", mirror},
		field{"Identity", identitySummary(ctx)},
	)

	con.rule()
	var names []string
	for _, p := range notarize.FromConfig(c.Notarization) {
		names = append(names, p.Name())
	}
	notaries := "none"
	if len(names) > 0 {
		notaries = strings.Join(names, ", ")
	}
	con.fields(
		field{"Proofs", onOff(c.ProofEnabled)},
		field{"Device IDs", onOff(c.IncludeDeviceIDs)},
		field{"Location", onOff(c.IncludeLocation)},
		field{"Network", onOff(c.IncludeNetwork)},
		field{"Credentials", onOff(c.EmbedCredentials)},
		field{"Notarize", onOff(c.AutoNotarize)},
		field{"Notaries", notaries},
	)

	a, err := ctx.App()
	if err != nil {
		con.warn("Store unavailable: %v", err)
		return nil
	}
	defer ctx.Close()
	fps, err := a.Local.Fingerprints()
	if err != nil {
		con.warn("Could not count proofs: %v", err)
		return nil
	}
	con.fields(field{"Bundles", len(fps)})
	return nil
}

func identitySummary(ctx *runner.CommandContext) string {
	if !ctx.HasIdentity() {
		return "not generated"
	}
	fp, err := ctx.Signer().Fingerprint()
	if err != nil {
		return fmt.Sprintf("unreadable (%v)", err)
	}
	return fp
}
