package storage

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/lcrostarosa/proofmode/internal/logging"
)

const mirrorTimeout = 2 * time.Minute

// MirrorResult reports the outcome of one secondary write.
type MirrorResult struct {
	Fingerprint string
	Identifier  string
	Locator     string
	Err         error
}

// Listener receives mirror results. It is called from background goroutines.
type Listener func(MirrorResult)

// Composite writes to an authoritative primary and mirrors every artifact to
// an optional secondary. Reads and existence checks use the primary only.
type Composite struct {
	primary   Provider
	secondary Provider
	listener  Listener
	timeout   time.Duration

	wg sync.WaitGroup
}

// CompositeOption configures a Composite.
type CompositeOption func(*Composite)

// WithListener registers a listener for mirror results.
func WithListener(l Listener) CompositeOption {
	return func(c *Composite) { c.listener = l }
}

// WithMirrorTimeout bounds each secondary write.
func WithMirrorTimeout(d time.Duration) CompositeOption {
	return func(c *Composite) { c.timeout = d }
}

// NewComposite wraps primary. A nil secondary disables mirroring.
func NewComposite(primary, secondary Provider, opts ...CompositeOption) *Composite {
	c := &Composite{
		primary:   primary,
		secondary: secondary,
		timeout:   mirrorTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Primary returns the authoritative provider.
func (c *Composite) Primary() Provider {
	return c.primary
}

// Flush waits for pending mirror writes.
func (c *Composite) Flush() {
	c.wg.Wait()
}

// SaveStream implements Provider. The mirror reads the artifact back from
// the primary, so r is never read again after the primary write returns.
func (c *Composite) SaveStream(ctx context.Context, fingerprint, identifier string, r io.Reader) error {
	if err := c.primary.SaveStream(ctx, fingerprint, identifier, r); err != nil {
		return err
	}
	c.mirror(ctx, fingerprint, identifier, func(ctx context.Context) error {
		rc, err := c.primary.GetInputStream(ctx, fingerprint, identifier)
		if err != nil {
			return err
		}
		defer rc.Close()
		return c.secondary.SaveStream(ctx, fingerprint, identifier, rc)
	})
	return nil
}

// SaveBytes implements Provider.
func (c *Composite) SaveBytes(ctx context.Context, fingerprint, identifier string, data []byte) error {
	if err := c.primary.SaveBytes(ctx, fingerprint, identifier, data); err != nil {
		return err
	}
	replay := append([]byte(nil), data...)
	c.mirror(ctx, fingerprint, identifier, func(ctx context.Context) error {
		return c.secondary.SaveBytes(ctx, fingerprint, identifier, replay)
	})
	return nil
}

// SaveText implements Provider.
func (c *Composite) SaveText(ctx context.Context, fingerprint, identifier, text string) error {
	if err := c.primary.SaveText(ctx, fingerprint, identifier, text); err != nil {
		return err
	}
	c.mirror(ctx, fingerprint, identifier, func(ctx context.Context) error {
		return c.secondary.SaveText(ctx, fingerprint, identifier, text)
	})
	return nil
}

func (c *Composite) mirror(ctx context.Context, fingerprint, identifier string, write func(context.Context) error) {
	if c.secondary == nil {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		result := MirrorResult{Fingerprint: fingerprint, Identifier: identifier}
		if err := write(mctx); err != nil {
			result.Err = err
			logging.Warn("Mirror write failed",
				logging.Fingerprint(fingerprint),
				logging.String("identifier", identifier),
				logging.Err(err))
			c.notify(result)
			return
		}

		result.Locator = c.secondary.Locator(fingerprint, identifier)
		if err := c.primary.SaveText(mctx, fingerprint, URIName(identifier), result.Locator); err != nil {
			result.Err = err
			logging.Warn("Failed to record mirror location",
				logging.Fingerprint(fingerprint),
				logging.String("identifier", identifier),
				logging.Err(err))
		} else {
			logging.Debug("Mirrored artifact",
				logging.Fingerprint(fingerprint),
				logging.String("locator", result.Locator))
		}
		c.notify(result)
	}()
}

func (c *Composite) notify(result MirrorResult) {
	if c.listener != nil {
		c.listener(result)
	}
}

// GetInputStream implements Provider.
func (c *Composite) GetInputStream(ctx context.Context, fingerprint, identifier string) (io.ReadCloser, error) {
	return c.primary.GetInputStream(ctx, fingerprint, identifier)
}

// ProofExists implements Provider.
func (c *Composite) ProofExists(ctx context.Context, fingerprint string) bool {
	return c.primary.ProofExists(ctx, fingerprint)
}

// ProofIdentifierExists implements Provider.
func (c *Composite) ProofIdentifierExists(ctx context.Context, fingerprint, identifier string) bool {
	return c.primary.ProofIdentifierExists(ctx, fingerprint, identifier)
}

// GetProofSet implements Provider.
func (c *Composite) GetProofSet(ctx context.Context, fingerprint string) ([]string, error) {
	return c.primary.GetProofSet(ctx, fingerprint)
}

// GetProofItem implements Provider.
func (c *Composite) GetProofItem(ctx context.Context, locator string) (io.ReadCloser, error) {
	return c.primary.GetProofItem(ctx, locator)
}

// Locator implements Provider.
func (c *Composite) Locator(fingerprint, identifier string) string {
	return c.primary.Locator(fingerprint, identifier)
}
