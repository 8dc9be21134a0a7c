// Package provider caches one engine handle per process.
//
// A Provider is constructed once at application start and handed to every
// consumer of an engine. It runs at most one cold start at a time: callers
// arriving while a load is in flight join it, a successful handle is
// cached until Terminate, and a failed load leaves nothing behind so the
// next call starts over.
package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/enginebridge/errors"
)

const flightKey = "init"

// errSuperseded marks a load that landed after Terminate
var errSuperseded = stderrors.New("load superseded by terminate")

// Config describes how to build and tear down a handle
type Config[H any] struct {
	// Name identifies the engine in logs and errors
	Name string

	// Load performs the cold start. It runs detached from the caller's
	// cancellation so that one impatient caller does not abort a load
	// other callers are waiting on.
	Load func(ctx context.Context) (H, error)

	// Close releases the handle (session first, then engine). Optional.
	Close func(ctx context.Context, h H) error

	Logger *zap.Logger
}

// Provider is a process-wide, single-flight handle cache
type Provider[H any] struct {
	cfg   Config[H]
	log   *zap.Logger
	group singleflight.Group
	loads atomic.Uint64

	mu         sync.Mutex
	handle     H
	cached     bool
	generation uint64
}

// New creates a provider. Nothing is loaded until the first GetOrInit.
func New[H any](cfg Config[H]) *Provider[H] {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider[H]{
		cfg: cfg,
		log: log.With(zap.String("engine", cfg.Name)),
	}
}

// Name returns the engine name
func (p *Provider[H]) Name() string {
	return p.cfg.Name
}

// GetOrInit returns the cached handle, joining or starting a load as needed
func (p *Provider[H]) GetOrInit(ctx context.Context) (H, error) {
	h, _, err := p.Acquire(ctx)
	return h, err
}

// Acquire is GetOrInit that also reports the generation the handle
// belongs to. The generation changes on every Terminate.
func (p *Provider[H]) Acquire(ctx context.Context) (H, uint64, error) {
	var zero H
	for {
		if h, gen, ok := p.Current(); ok {
			return h, gen, nil
		}

		ch := p.group.DoChan(flightKey, func() (any, error) {
			return p.load(context.WithoutCancel(ctx))
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				if stderrors.Is(res.Err, errSuperseded) {
					continue
				}
				return zero, 0, res.Err
			}
			f := res.Val.(flight[H])
			return f.handle, f.generation, nil
		case <-ctx.Done():
			return zero, 0, ctx.Err()
		}
	}
}

type flight[H any] struct {
	handle     H
	generation uint64
}

func (p *Provider[H]) load(ctx context.Context) (any, error) {
	p.mu.Lock()
	if p.cached {
		f := flight[H]{p.handle, p.generation}
		p.mu.Unlock()
		return f, nil
	}
	gen := p.generation
	p.mu.Unlock()

	n := p.loads.Add(1)
	p.log.Debug("cold start", zap.Uint64("load", n), zap.Uint64("generation", gen))

	h, err := p.safeLoad(ctx)
	if err != nil {
		p.log.Warn("cold start failed", zap.Error(err))
		return nil, err
	}

	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		p.log.Info("discarding handle loaded across terminate", zap.Uint64("generation", gen))
		p.closeHandle(ctx, h)
		return nil, errSuperseded
	}
	p.handle, p.cached = h, true
	p.mu.Unlock()

	return flight[H]{h, gen}, nil
}

func (p *Provider[H]) safeLoad(ctx context.Context) (h H, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.LoadFailure(p.cfg.Name, "load", fmt.Errorf("panic: %v", r))
		}
	}()
	if p.cfg.Load == nil {
		return h, errors.LoadFailure(p.cfg.Name, "load", stderrors.New("no loader configured"))
	}
	return p.cfg.Load(ctx)
}

// Current returns the cached handle without loading
func (p *Provider[H]) Current() (H, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle, p.generation, p.cached
}

// Cached reports whether a handle is cached
func (p *Provider[H]) Cached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached
}

// Generation returns the number of Terminate calls so far
func (p *Provider[H]) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Loads returns how many times the cold start has been invoked
func (p *Provider[H]) Loads() uint64 {
	return p.loads.Load()
}

// Terminate closes the cached handle and clears the cache. Close errors
// are logged, not returned. A load in flight is discarded when it lands.
func (p *Provider[H]) Terminate(ctx context.Context) {
	p.mu.Lock()
	h, had := p.handle, p.cached
	var zero H
	p.handle, p.cached = zero, false
	p.generation++
	gen := p.generation
	p.mu.Unlock()

	if had {
		p.closeHandle(ctx, h)
	}
	p.log.Info("engine terminated", zap.Bool("had_handle", had), zap.Uint64("generation", gen))
}

func (p *Provider[H]) closeHandle(ctx context.Context, h H) {
	if p.cfg.Close == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("close panicked", zap.Any("panic", r))
		}
	}()
	if err := p.cfg.Close(ctx, h); err != nil {
		p.log.Warn("close failed", zap.Error(errors.Wrap(errors.PhaseTerminate, errors.KindTerminated, err, "close")))
	}
}
