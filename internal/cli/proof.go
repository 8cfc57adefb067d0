package cli

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/cli/runner"
	"github.com/lcrostarosa/proofmode/internal/pipeline"
)

var proofCmd = &cobra.Command{
	Use:   "proof <files...>",
	Short: "Generate proof bundles for media files",
	Long: `Fingerprint each file, record its capture context and sign the
result. Files that already have a proof are reported and left alone.
Notarization and mirroring finish before the command exits.`,
	Example: `  proofmode proof IMG_0001.jpg IMG_0002.jpg

  # Attach a note to every record
  proofmode proof --notes "Protest, Main St" clip.mp4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runners.Proof().RunE(runProof),
}

func init() {
	f := proofCmd.Flags()
	f.String("notes", "", "Free-text note stored in each record")
	f.String("mime", "", "Media type (default: guessed from the file extension)")
	f.String("created-at", "", "Capture time as RFC 3339 (default: file modification time)")
	f.Bool("autogenerated", false, "Mark the submission as not initiated by a person")

	rootCmd.AddCommand(proofCmd)
}

func runProof(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	notes := flags.String("notes")
	mimeType := flags.String("mime")
	createdAt := flags.Time("created-at")
	autogenerated := flags.Bool("autogenerated")
	if err := flags.Err(); err != nil {
		return err
	}

	a, err := ctx.App()
	if err != nil {
		return err
	}

	con := consoleFor(cmd)
	var errs []error
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mt := mimeType
		if mt == "" {
			mt = mime.TypeByExtension(filepath.Ext(path))
		}

		fingerprint, err := a.Processor.Process(cmd.Context(), pipeline.Request{
			Path:          path,
			MimeType:      mt,
			Autogenerated: autogenerated,
			CreatedAt:     createdAt,
			Notes:         notes,
		})
		if err != nil {
			con.fail("%s: %v", arg, err)
			errs = append(errs, fmt.Errorf("%s: %w", arg, err))
			continue
		}
		con.printf("%s  %s", fingerprint, arg)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d files failed: %w", len(errs), len(args), errors.Join(errs...))
	}
	return nil
}
