package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/notarize"
)

var (
	// ErrClosed is returned for submissions after Close.
	ErrClosed = errors.New("pipeline closed")
	// ErrDisabled is returned when proof generation is turned off.
	ErrDisabled = errors.New("proof generation disabled")
	// ErrQueueFull is returned by Enqueue when the worker is saturated.
	ErrQueueFull = errors.New("pipeline queue full")
)

type result struct {
	fingerprint string
	err         error
}

type job struct {
	ctx  context.Context
	req  Request
	done chan result
}

// Processor generates proof bundles on a single worker goroutine.
type Processor struct {
	deps Deps
	opts Options
	conn notarize.Connectivity

	jobs   chan job
	events chan Event

	startOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	worker    sync.WaitGroup
	notaries  sync.WaitGroup
}

// New creates a processor. The worker starts on Start or on first submission.
func New(deps Deps, opts Options) *Processor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	conn := deps.Connectivity
	if conn == nil {
		conn = notarize.AlwaysOnline{}
	}
	return &Processor{
		deps:   deps,
		opts:   opts,
		conn:   conn,
		jobs:   make(chan job, opts.QueueSize),
		events: make(chan Event, opts.QueueSize),
	}
}

// Start launches the worker. Calling it more than once is harmless.
func (p *Processor) Start() {
	p.startOnce.Do(func() {
		p.worker.Add(1)
		go p.run()
	})
}

// Events delivers one Event per finished request. Events are dropped when
// nobody reads them.
func (p *Processor) Events() <-chan Event {
	return p.events
}

// Submit queues a media file and returns immediately. The file is dropped,
// with a warning, when the queue is full or closed.
func (p *Processor) Submit(path, mimeType string, autogenerated bool, createdAt *time.Time) {
	req := Request{Path: path, MimeType: mimeType, Autogenerated: autogenerated, CreatedAt: createdAt}
	if err := p.Enqueue(req); err != nil {
		logging.Warn("Submission rejected", logging.Media(path), logging.Err(err))
	}
}

// Enqueue queues req without waiting for room. It returns ErrQueueFull
// when the queue is full and ErrClosed after Close.
func (p *Processor) Enqueue(req Request) error {
	return p.enqueue(job{ctx: context.Background(), req: req}, false)
}

// SubmitBytes generates a proof for in-memory content and returns its
// fingerprint, or "" when no proof could be produced.
func (p *Processor) SubmitBytes(ctx context.Context, data []byte, mimeType string, createdAt *time.Time) string {
	fingerprint, err := p.Process(ctx, Request{Data: data, MimeType: mimeType, CreatedAt: createdAt})
	if err != nil {
		return ""
	}
	return fingerprint
}

// Process queues req and waits for its result. An existing bundle is not an
// error: its fingerprint is returned and nothing is written.
func (p *Processor) Process(ctx context.Context, req Request) (string, error) {
	done := make(chan result, 1)
	if err := p.enqueue(job{ctx: ctx, req: req, done: done}, true); err != nil {
		return "", err
	}
	select {
	case r := <-done:
		return r.fingerprint, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Processor) enqueue(j job, wait bool) error {
	p.Start()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if !wait {
		select {
		case p.jobs <- j:
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case p.jobs <- j:
		return nil
	case <-j.ctx.Done():
		return j.ctx.Err()
	}
}

// Close stops accepting submissions, drains the queue and waits for
// notarization and mirror writes to finish.
func (p *Processor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.Start()
	p.worker.Wait()
	p.notaries.Wait()
	if f, ok := p.deps.Store.(Flusher); ok {
		f.Flush()
	}
	close(p.events)
}

func (p *Processor) run() {
	defer p.worker.Done()

	for j := range p.jobs {
		if err := j.ctx.Err(); err != nil {
			p.finish(j, Event{Ref: j.req.Ref(), Err: err})
			continue
		}

		fingerprint, skipped, err := p.generate(j.ctx, j.req)
		p.finish(j, Event{Ref: j.req.Ref(), Fingerprint: fingerprint, Skipped: skipped, Err: err})
	}
}

func (p *Processor) finish(j job, ev Event) {
	switch {
	case ev.Err != nil:
		if !errors.Is(ev.Err, ErrDisabled) {
			logging.Error("Proof generation failed", logging.Media(ev.Ref), logging.Err(ev.Err))
		}
		p.deps.Callbacks.callOnProofFailed(ev)
	case ev.Skipped:
		p.deps.Callbacks.callOnProofSkipped(ev)
	default:
		p.deps.Callbacks.callOnProofGenerated(ev)
	}

	if j.done != nil {
		j.done <- result{fingerprint: ev.Fingerprint, err: ev.Err}
	}
	select {
	case p.events <- ev:
	default:
	}
}

// notarize fans out to the providers once the bundle is durable.
func (p *Processor) notarize(ctx context.Context, fingerprint, mimeType string, content []byte) {
	if !p.notarizes() {
		return
	}
	if !p.conn.Online(ctx) {
		logging.Info("Offline, skipping notarization", logging.Fingerprint(fingerprint))
		return
	}

	ctx = context.WithoutCancel(ctx)
	p.notaries.Add(1)
	go func() {
		defer p.notaries.Done()
		outcomes := p.deps.Notary.Notarize(ctx, fingerprint, mimeType, content)
		p.deps.Callbacks.callOnNotarized(fingerprint, outcomes)
	}()
}

// notarizes reports whether finished bundles are sent to notaries.
func (p *Processor) notarizes() bool {
	return p.opts.AutoNotarize && p.deps.Notary != nil && p.deps.Notary.Len() > 0
}

func missingDeps(d Deps) error {
	switch {
	case d.Store == nil:
		return fmt.Errorf("pipeline: no storage provider")
	case d.Signer == nil:
		return fmt.Errorf("pipeline: no signing backend")
	case d.Builder == nil:
		return fmt.Errorf("pipeline: no record builder")
	}
	return nil
}
