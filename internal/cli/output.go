package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// console writes human-readable command output.
type console struct {
	w io.Writer
}

func consoleFor(cmd *cobra.Command) console {
	return console{w: cmd.OutOrStdout()}
}

func (c console) printf(format string, args ...any) {
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c console) success(format string, args ...any) { c.printf("✅ "+format, args...) }
func (c console) warn(format string, args ...any) { c.printf("⚠️  "+format, args...) }
func (c console) fail(format string, args ...any) { c.printf("❌ "+format, args...) }

func (c console) heading(title string) {
	c.printf("%s\n%s", title, strings.Repeat("=", len(title)))
}

func (c console) rule() {
	c.printf("%s", strings.Repeat("-", 70))
}

// field is one "Label: value" row.
type field struct {
	label string
	value any
}

// fields prints rows with their values aligned.
func (c console) fields(rows ...field) {
	tw := tabwriter.NewWriter(c.w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%v\n", r.label, r.value)
	}
	tw.Flush()
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
