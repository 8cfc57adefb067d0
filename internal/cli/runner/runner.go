package runner

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/proofmode/internal/config"
)

// ConfigProvider returns the configuration loaded at startup and its load error.
type ConfigProvider func() (*config.Config, error)

// Handler is a command body.
type Handler func(ctx *CommandContext, cmd *cobra.Command, args []string) error

// Interceptor decorates a Handler. The first interceptor in a chain runs outermost.
type Interceptor func(next Handler) Handler

// Runner builds cobra RunE functions behind a fixed interceptor chain.
type Runner struct {
	provider ConfigProvider
	chain    []Interceptor
}

// NewRunner returns a runner that applies chain in order.
func NewRunner(provider ConfigProvider, chain ...Interceptor) *Runner {
	return &Runner{provider: provider, chain: chain}
}

// With returns a runner with more interceptors appended. r is not modified.
func (r *Runner) With(more ...Interceptor) *Runner {
	return &Runner{provider: r.provider, chain: append(slices.Clip(r.chain), more...)}
}

// RunE adapts h for cobra. Each invocation gets a fresh CommandContext.
func (r *Runner) RunE(h Handler) func(*cobra.Command, []string) error {
	for i := len(r.chain) - 1; i >= 0; i-- {
		h = r.chain[i](h)
	}
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := r.provider()
		return h(NewContext(cfg, err), cmd, args)
	}
}

// Builder hands out the runners the proofmode commands share. Every one
// logs the command.
type Builder struct {
	provider ConfigProvider
}

func NewBuilder(provider ConfigProvider) *Builder {
	return &Builder{provider: provider}
}

func (b *Builder) runner(chain ...Interceptor) *Runner {
	return NewRunner(b.provider, WithLogging).With(chain...)
}

// Uninitialized is for commands that work before 'proofmode init'.
func (b *Builder) Uninitialized() *Runner { return b.runner() }

// Config is for commands that only read or change configuration.
func (b *Builder) Config() *Runner { return b.runner(RequireConfig) }

// Identity is for commands that use an existing signing identity.
func (b *Builder) Identity() *Runner { return b.runner(RequireIdentity) }

// Pipeline is for commands that read or serve bundles. The pipeline is
// drained when the command returns.
func (b *Builder) Pipeline() *Runner { return b.runner(RequireConfig, WithPipeline) }

// Proof is Pipeline for commands that generate proofs.
func (b *Builder) Proof() *Runner { return b.runner(RequireProofEnabled, WithPipeline) }
