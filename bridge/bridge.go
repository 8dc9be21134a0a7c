package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/errors"
	"github.com/wippyai/enginebridge/normalize"
	"github.com/wippyai/enginebridge/provider"
	"github.com/wippyai/enginebridge/readiness"
)

// DefaultTimeout is the initialization budget of a consumer
const DefaultTimeout = 60 * time.Second

// Engine configures a Bridge for one kind of engine
type Engine[H any] struct {
	// Name is used in messages such as "<name> not ready"
	Name string

	// Provider owns the shared handle and runs the cold start
	Provider *provider.Provider[H]

	// Execute submits one unit of source text against the handle
	Execute func(ctx context.Context, h H, source string) (enginebridge.Output, error)

	// Normalize converts one scalar; defaults to normalize.Value
	Normalize func(any) any
}

type options struct {
	timeout  time.Duration
	autoInit bool
	logger   *zap.Logger
}

// Option configures a Bridge
type Option func(*options)

// WithTimeout overrides the initialization budget
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithAutoInit starts initialization as soon as the bridge is created
func WithAutoInit() Option {
	return func(o *options) { o.autoInit = true }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Bridge is one consumer of a shared engine. It owns the consumer's
// readiness and runs executions against the provider's handle.
type Bridge[H any] struct {
	eng     Engine[H]
	timeout time.Duration
	log     *zap.Logger
	tracker *readiness.Tracker

	// generation of the provider when this consumer became ready
	gen atomic.Uint64

	// serializes statements against the shared session
	execMu sync.Mutex
}

// New creates a bridge in the Uninitialized state
func New[H any](eng Engine[H], opts ...Option) *Bridge[H] {
	o := options{timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if eng.Normalize == nil {
		eng.Normalize = normalize.Value
	}

	b := &Bridge[H]{
		eng:     eng,
		timeout: o.timeout,
		log:     o.logger.With(zap.String("engine", eng.Name)),
		tracker: readiness.New(),
	}
	if o.autoInit {
		b.InitializeAsync()
	}
	return b
}

// Name returns the engine name
func (b *Bridge[H]) Name() string {
	return b.eng.Name
}

// Logger returns the bridge's logger, scoped to the engine
func (b *Bridge[H]) Logger() *zap.Logger {
	return b.log
}

// Timeout returns the initialization budget
func (b *Bridge[H]) Timeout() time.Duration {
	return b.timeout
}

// Initialize brings the consumer to Ready. Calls made while an attempt is
// in flight wait for that attempt instead of starting another. The
// attempt's error is returned; ctx only bounds how long this call waits.
func (b *Bridge[H]) Initialize(ctx context.Context) error {
	b.refresh()

	tok, issued := b.tracker.Begin()
	if tok == nil {
		return nil
	}
	if issued {
		go b.attempt(tok)
	}

	select {
	case <-tok.Done():
		return tok.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InitializeAsync triggers initialization without waiting for it
func (b *Bridge[H]) InitializeAsync() {
	b.refresh()
	if tok, issued := b.tracker.Begin(); issued {
		go b.attempt(tok)
	}
}

func (b *Bridge[H]) attempt(tok *readiness.Token) {
	ctx, cancel := context.WithTimeout(tok.Context(), b.timeout)
	defer cancel()

	start := time.Now()
	b.log.Debug("initialize", zap.Uint64("attempt", tok.Attempt()))

	_, gen, err := b.eng.Provider.Acquire(ctx)
	if err != nil && stderrors.Is(err, context.DeadlineExceeded) && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errors.Timeout(b.eng.Name, b.timeout)
	}
	if err == nil {
		b.gen.Store(gen)
	}

	if !b.tracker.Commit(tok, err) {
		b.log.Debug("discarding stale initialization result",
			zap.Uint64("attempt", tok.Attempt()),
			zap.Error(err))
		return
	}

	if err != nil {
		b.log.Warn("initialization failed",
			zap.Uint64("attempt", tok.Attempt()),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return
	}
	b.log.Info("ready", zap.Uint64("attempt", tok.Attempt()), zap.Duration("took", time.Since(start)))
}

// refresh drops back to Uninitialized when the provider was terminated
// after this consumer became ready.
func (b *Bridge[H]) refresh() {
	if b.tracker.Snapshot().State != enginebridge.Ready {
		return
	}
	if _, gen, ok := b.eng.Provider.Current(); !ok || gen != b.gen.Load() {
		b.log.Info("shared handle terminated, resetting")
		b.tracker.Reset()
	}
}

// handle returns the live handle when the consumer is ready
func (b *Bridge[H]) handle() (H, bool) {
	var zero H
	if b.tracker.Snapshot().State != enginebridge.Ready {
		return zero, false
	}
	h, gen, ok := b.eng.Provider.Current()
	if !ok || gen != b.gen.Load() {
		b.tracker.Reset()
		return zero, false
	}
	return h, true
}

// Handle borrows the engine handle for engine-specific operations. It
// reports false unless the consumer is ready.
func (b *Bridge[H]) Handle() (H, bool) {
	return b.handle()
}

// Use runs fn with the handle, serialized with executions. It returns a
// not-ready error without calling fn unless the consumer is ready.
func (b *Bridge[H]) Use(ctx context.Context, fn func(ctx context.Context, h H) error) error {
	h, ok := b.handle()
	if !ok {
		return errors.NotReady(b.eng.Name)
	}
	b.execMu.Lock()
	defer b.execMu.Unlock()
	return fn(ctx, h)
}

// Execute runs source through the engine and returns a normalized result.
// Engine errors, non-empty captured stderr and a not-ready consumer all
// come back as failure results.
func (b *Bridge[H]) Execute(ctx context.Context, source string) enginebridge.Result {
	h, ok := b.handle()
	if !ok {
		return enginebridge.Failure(errors.NotReady(b.eng.Name).Message(), 0)
	}

	b.execMu.Lock()
	defer b.execMu.Unlock()

	start := time.Now()
	out, err := b.run(ctx, h, source)
	if err != nil {
		b.log.Debug("execution failed", zap.Error(err))
		return enginebridge.Failure(errors.Message(err), time.Since(start))
	}

	if out.Text {
		if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
			return enginebridge.Failure(stderr, time.Since(start))
		}
		return enginebridge.Text(strings.TrimSpace(out.Stdout), time.Since(start))
	}

	rows := make([][]any, len(out.Rows))
	for i, r := range out.Rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = b.eng.Normalize(v)
		}
		rows[i] = row
	}
	columns := append([]string(nil), out.Columns...)
	return enginebridge.Rows(columns, rows, time.Since(start))
}

func (b *Bridge[H]) run(ctx context.Context, h H, source string) (out enginebridge.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Statement(b.eng.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	return b.eng.Execute(ctx, h, source)
}

// State returns the consumer's current readiness
func (b *Bridge[H]) State() enginebridge.Snapshot {
	b.refresh()
	return b.tracker.Snapshot()
}

// Subscribe registers fn for readiness transitions
func (b *Bridge[H]) Subscribe(fn func(enginebridge.Snapshot)) func() {
	return b.tracker.Subscribe(fn)
}

// Detach abandons any attempt in flight. The shared handle is untouched.
func (b *Bridge[H]) Detach() {
	b.tracker.Detach()
}

// Terminate closes the shared handle for every consumer and resets this one
func (b *Bridge[H]) Terminate(ctx context.Context) {
	b.eng.Provider.Terminate(ctx)
	b.tracker.Reset()
}
