package runner

import (
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/logging"
)

// check is a precondition evaluated before a handler runs.
type check func(ctx *CommandContext) error

// guard runs checks in order and stops at the first failure.
func guard(checks ...check) Interceptor {
	return func(next Handler) Handler {
		return func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			for _, c := range checks {
				if err := c(ctx); err != nil {
					return err
				}
			}
			return next(ctx, cmd, args)
		}
	}
}

func configLoaded(ctx *CommandContext) error {
	if ctx.ConfigErr != nil {
		return ctx.ConfigErr
	}
	if ctx.Config == nil {
		return ErrNotInitialized
	}
	return nil
}

func proofEnabled(ctx *CommandContext) error {
	if !ctx.ProofEnabled() {
		return ErrProofDisabled
	}
	return nil
}

func identityPresent(ctx *CommandContext) error {
	if !ctx.HasIdentity() {
		return ErrNoIdentity
	}
	return nil
}

var (
	// RequireConfig fails with ErrNotInitialized until 'proofmode init' has run.
	RequireConfig = guard(configLoaded)

	// RequireProofEnabled also fails with ErrProofDisabled when proof
	// generation is switched off.
	RequireProofEnabled = guard(configLoaded, proofEnabled)

	// RequireIdentity also fails with ErrNoIdentity when no signing key exists.
	RequireIdentity = guard(configLoaded, identityPresent)
)

// WithPipeline closes the assembled pipeline after the handler returns, so
// queued notarizations and mirror writes finish before the process exits.
func WithPipeline(next Handler) Handler {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
		defer ctx.Close()
		return next(ctx, cmd, args)
	}
}

// WithLogging records each command and its failure at debug level.
func WithLogging(next Handler) Handler {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
		logging.Debug("CLI command", logging.String("cmd", cmd.Name()), logging.Int("args", len(args)))
		err := next(ctx, cmd, args)
		if err != nil {
			logging.Debug("CLI command failed", logging.String("cmd", cmd.Name()), logging.Err(err))
		}
		return err
	}
}
