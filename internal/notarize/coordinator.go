package notarize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/storage"
)

const (
	defaultTimeout           = 30 * time.Second
	defaultRequestsPerMinute = 30
)

// Outcome is the result of one provider for one fingerprint.
type Outcome struct {
	Provider   string
	Identifier string
	Duration   time.Duration
	Err        error
}

type registered struct {
	provider Provider
	limiter  *rate.Limiter
}

// Coordinator fans a fingerprint out to every registered provider.
type Coordinator struct {
	store   storage.Provider
	timeout time.Duration
	rpm     int

	mu        sync.RWMutex
	providers []registered
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequestsPerMinute limits calls to each provider.
func WithRequestsPerMinute(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.rpm = n
		}
	}
}

// NewCoordinator stores receipts in store.
func NewCoordinator(store storage.Provider, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		timeout: defaultTimeout,
		rpm:     defaultRequestsPerMinute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a provider.
func (c *Coordinator) Register(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.rpm)), c.rpm)
	c.providers = append(c.providers, registered{provider: p, limiter: limiter})
}

// Providers returns the names of registered providers.
func (c *Coordinator) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.providers))
	for i, r := range c.providers {
		names[i] = r.provider.Name()
	}
	return names
}

// Len returns the number of registered providers.
func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.providers)
}

// Notarize calls every provider concurrently and stores each receipt.
// Failures are logged and reported per provider; they never affect
// siblings and Notarize itself never fails.
func (c *Coordinator) Notarize(ctx context.Context, fingerprint, mimeType string, content []byte) []Outcome {
	c.mu.RLock()
	providers := append([]registered(nil), c.providers...)
	c.mu.RUnlock()

	outcomes := make([]Outcome, len(providers))
	var wg sync.WaitGroup
	for i, r := range providers {
		wg.Add(1)
		go func(i int, r registered) {
			defer wg.Done()
			outcomes[i] = c.run(ctx, r, fingerprint, mimeType, content)
		}(i, r)
	}
	wg.Wait()
	return outcomes
}

func (c *Coordinator) run(ctx context.Context, r registered, fingerprint, mimeType string, content []byte) (out Outcome) {
	name := r.provider.Name()
	start := time.Now()
	out = Outcome{Provider: name}

	defer func() {
		if rec := recover(); rec != nil {
			out.Err = newError(name, CodePanic, "provider panicked: %v", rec)
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			logging.Warn("Notarization failed",
				logging.Provider(name),
				logging.Fingerprint(fingerprint),
				logging.Err(out.Err))
		} else {
			logging.Info("Notarization stored",
				logging.Provider(name),
				logging.Fingerprint(fingerprint),
				logging.String("identifier", out.Identifier),
				logging.Duration("duration", out.Duration))
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := r.limiter.Wait(pctx); err != nil {
		out.Err = newError(name, CodeThrottle, "rate limited: %v", err)
		return out
	}

	result, err := r.provider.Notarize(pctx, fingerprint, mimeType, content)
	if err != nil {
		var nerr *Error
		switch {
		case errors.As(err, &nerr):
			out.Err = nerr
		case errors.Is(err, context.DeadlineExceeded):
			out.Err = newError(name, CodeTimeout, "timed out after %s", c.timeout)
		default:
			out.Err = newError(name, CodeRequest, "%v", err)
		}
		return out
	}

	identifier, err := c.storeResult(ctx, fingerprint, r.provider.FileExtension(), result)
	if err != nil {
		out.Err = newError(name, CodeStorage, "store receipt: %v", err)
		return out
	}
	out.Identifier = identifier
	return out
}

func (c *Coordinator) storeResult(ctx context.Context, fingerprint, ext string, result Result) (string, error) {
	switch result.Kind {
	case KindText:
		id := storage.ReceiptName(fingerprint, ext)
		return id, c.store.SaveText(ctx, fingerprint, id, result.Text)

	case KindBytes:
		id := storage.ReceiptName(fingerprint, ext)
		return id, c.store.SaveBytes(ctx, fingerprint, id, result.Bytes)

	case KindFile:
		defer os.Remove(result.File)
		if fileExt := receiptExt(result.File); fileExt != "" {
			ext = fileExt
		}
		f, err := os.Open(result.File)
		if err != nil {
			return "", err
		}
		defer f.Close()
		id := storage.ReceiptName(fingerprint, ext)
		return id, c.store.SaveStream(ctx, fingerprint, id, f)
	}
	return "", fmt.Errorf("unknown result kind %d", result.Kind)
}

// receiptExt returns everything from the first dot of the file's base name.
func receiptExt(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i > 0 {
		return base[i:]
	}
	return ""
}
