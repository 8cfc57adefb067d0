package runner

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// FlagSet reads a command's flags and collects every lookup or parse
// failure, so a handler reads all its flags and then checks Err once.
type FlagSet struct {
	set  *pflag.FlagSet
	errs []error
}

// Flags wraps cmd's flags.
func Flags(cmd *cobra.Command) *FlagSet {
	return &FlagSet{set: cmd.Flags()}
}

func get[T any](f *FlagSet, name string, lookup func(string) (T, error)) T {
	v, err := lookup(name)
	if err != nil {
		f.errs = append(f.errs, fmt.Errorf("--%s: %w", name, err))
	}
	return v
}

func (f *FlagSet) String(name string) string { return get(f, name, f.set.GetString) }
func (f *FlagSet) Bool(name string) bool { return get(f, name, f.set.GetBool) }

// Time parses an RFC 3339 string flag. An empty value yields nil.
func (f *FlagSet) Time(name string) *time.Time {
	raw := f.String(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		f.errs = append(f.errs, fmt.Errorf("--%s: want RFC 3339 time: %w", name, err))
		return nil
	}
	return &t
}

// File returns a path flag that, when set, must name an existing regular file.
func (f *FlagSet) File(name string) string {
	path := f.String(name)
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		f.errs = append(f.errs, fmt.Errorf("--%s: %w", name, err))
	case !info.Mode().IsRegular():
		f.errs = append(f.errs, fmt.Errorf("--%s: %s is not a regular file", name, path))
	}
	return path
}

// Changed reports whether the flag was set on the command line.
func (f *FlagSet) Changed(name string) bool { return f.set.Changed(name) }

// Err joins every failure seen so far, or returns nil.
func (f *FlagSet) Err() error { return errors.Join(f.errs...) }
