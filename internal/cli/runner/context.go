package runner

import (
	"sync"

	"github.com/lcrostarosa/proofmode/internal/app"
	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/signing"
)

// CommandContext carries what a command needs. The signer and the pipeline
// are built on first use, so commands that never touch them stay cheap.
type CommandContext struct {
	// Config is nil before 'proofmode init'.
	Config    *config.Config
	ConfigErr error

	signerOnce sync.Once
	signer     *signing.Local

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func NewContext(cfg *config.Config, cfgErr error) *CommandContext {
	return &CommandContext{Config: cfg, ConfigErr: cfgErr}
}

// Signer returns the configured signing backend, or nil without a config.
func (c *CommandContext) Signer() *signing.Local {
	c.signerOnce.Do(func() {
		if c.Config == nil || c.Config.ConfigDir == "" {
			return
		}
		c.signer = app.NewSigner(c.Config)
	})
	return c.signer
}

// App assembles the pipeline around Signer. Whoever triggers it must
// eventually call Close; WithPipeline does so for commands.
func (c *CommandContext) App() (*app.App, error) {
	c.appOnce.Do(func() {
		if c.Config == nil {
			c.appErr = ErrNotInitialized
			return
		}
		var opts []app.Option
		if s := c.Signer(); s != nil {
			opts = append(opts, app.WithSigner(s))
		}
		c.app, c.appErr = app.New(c.Config, opts...)
	})
	return c.app, c.appErr
}

// Close drains the pipeline if App built one.
func (c *CommandContext) Close() {
	if c.app != nil {
		c.app.Close()
	}
}

func (c *CommandContext) ProofEnabled() bool { return c.Config != nil && c.Config.ProofEnabled }

// HasIdentity reports whether a signing identity exists on disk.
func (c *CommandContext) HasIdentity() bool {
	s := c.Signer()
	return s != nil && s.HasIdentity()
}
