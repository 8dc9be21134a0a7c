// Package readiness tracks one consumer's view of an engine's readiness.
//
// A Tracker moves through Uninitialized, Initializing, Ready and Failed.
// Every initialization attempt carries a Token; only a commit with the
// current, uncancelled token changes state, so results that arrive after a
// timeout, a detach or a newer attempt are ignored.
package readiness

import (
	"context"
	"slices"
	"sync"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/errors"
)

// Abandoned settles tokens whose attempt was cancelled by Detach or Reset
var Abandoned = errors.New(errors.PhaseInit, errors.KindTerminated).
	Detail("initialization abandoned").
	Build()

// Token identifies one initialization attempt
type Token struct {
	attempt uint64
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Attempt returns the attempt number this token was issued for
func (t *Token) Attempt() uint64 {
	return t.attempt
}

// Context is cancelled when the attempt is abandoned or settled
func (t *Token) Context() context.Context {
	return t.ctx
}

// Done is closed once the attempt settles
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Err returns the attempt's outcome; valid after Done is closed
func (t *Token) Err() error {
	return t.err
}

// Cancelled reports whether the attempt is no longer relevant
func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Tracker is the per-consumer readiness state machine
type Tracker struct {
	mu        sync.Mutex
	state     enginebridge.State
	err       error
	attempt   uint64
	token     *Token
	listeners []*listener
	queue     []enginebridge.Snapshot
	flushing  bool
}

type listener struct {
	fn func(enginebridge.Snapshot)
}

// New creates a tracker in the Uninitialized state
func New() *Tracker {
	return &Tracker{}
}

// Begin starts an attempt when the tracker is Uninitialized or Failed and
// returns its token with issued set. While Initializing it returns the
// attempt already in flight with issued unset. In the Ready state it
// returns a nil token.
func (t *Tracker) Begin() (tok *Token, issued bool) {
	t.mu.Lock()
	switch t.state {
	case enginebridge.Initializing:
		tok = t.token
		t.mu.Unlock()
		return tok, false
	case enginebridge.Ready:
		t.mu.Unlock()
		return nil, false
	}

	t.attempt++
	ctx, cancel := context.WithCancel(context.Background())
	tok = &Token{
		attempt: t.attempt,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	t.token = tok
	t.state, t.err = enginebridge.Initializing, nil
	t.enqueueLocked()
	t.mu.Unlock()

	t.flush()
	return tok, true
}

// Commit settles the attempt identified by tok: nil err moves to Ready,
// anything else to Failed. It reports whether the commit was applied; a
// stale or cancelled token changes nothing.
func (t *Tracker) Commit(tok *Token, err error) bool {
	t.mu.Lock()
	if tok == nil || tok != t.token || tok.Cancelled() {
		t.mu.Unlock()
		return false
	}

	t.token = nil
	if err != nil {
		t.state, t.err = enginebridge.Failed, err
	} else {
		t.state, t.err = enginebridge.Ready, nil
	}
	tok.err = err
	tok.cancel()
	close(tok.done)
	t.enqueueLocked()
	t.mu.Unlock()

	t.flush()
	return true
}

// Detach invalidates the attempt in flight and returns to Uninitialized.
// Use it when the consumer goes away.
func (t *Tracker) Detach() {
	t.abandon()
}

// Reset returns to Uninitialized, for example after the shared handle was
// terminated. An attempt in flight is abandoned.
func (t *Tracker) Reset() {
	t.abandon()
}

func (t *Tracker) abandon() {
	t.mu.Lock()
	if tok := t.token; tok != nil {
		t.token = nil
		tok.err = Abandoned
		tok.cancel()
		close(tok.done)
	}
	if t.state == enginebridge.Uninitialized {
		t.mu.Unlock()
		return
	}
	t.state, t.err = enginebridge.Uninitialized, nil
	t.enqueueLocked()
	t.mu.Unlock()

	t.flush()
}

// Snapshot returns the current state
func (t *Tracker) Snapshot() enginebridge.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Subscribe registers fn for every subsequent transition, delivered in
// order. The returned function unsubscribes.
func (t *Tracker) Subscribe(fn func(enginebridge.Snapshot)) func() {
	l := &listener{fn: fn}
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		t.listeners = slices.DeleteFunc(t.listeners, func(x *listener) bool { return x == l })
		t.mu.Unlock()
	}
}

func (t *Tracker) snapshotLocked() enginebridge.Snapshot {
	return enginebridge.Snapshot{State: t.state, Err: t.err, Attempt: t.attempt}
}

func (t *Tracker) enqueueLocked() {
	if len(t.listeners) == 0 {
		return
	}
	t.queue = append(t.queue, t.snapshotLocked())
}

// flush delivers queued snapshots. Only one goroutine delivers at a time,
// which keeps listeners in transition order and lets a listener call back
// into the tracker.
func (t *Tracker) flush() {
	t.mu.Lock()
	if t.flushing {
		t.mu.Unlock()
		return
	}
	t.flushing = true
	for len(t.queue) > 0 {
		s := t.queue[0]
		t.queue = t.queue[1:]
		ls := slices.Clone(t.listeners)
		t.mu.Unlock()
		for _, l := range ls {
			l.fn(s)
		}
		t.mu.Lock()
	}
	t.flushing = false
	t.mu.Unlock()
}
