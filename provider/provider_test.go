package provider

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/enginebridge/errors"
)

type handle struct {
	id     int
	closed atomic.Bool
}

func counting(release <-chan struct{}, fail error) (func(context.Context) (*handle, error), *atomic.Int32) {
	var n atomic.Int32
	return func(ctx context.Context) (*handle, error) {
		id := n.Add(1)
		if release != nil {
			<-release
		}
		if fail != nil {
			return nil, fail
		}
		return &handle{id: int(id)}, nil
	}, &n
}

func closer(_ context.Context, h *handle) error {
	h.closed.Store(true)
	return nil
}

func TestGetOrInit_ConcurrentCallersShareOneLoad(t *testing.T) {
	release := make(chan struct{})
	load, calls := counting(release, nil)
	p := New(Config[*handle]{Name: "sqlite", Load: load})

	const callers = 16
	got := make([]*handle, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := p.GetOrInit(context.Background())
			assert.NoError(t, err)
			got[i] = h
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), p.Loads())
	for _, h := range got {
		assert.Same(t, got[0], h)
	}
}

func TestGetOrInit_ConcurrentCallersShareOneFailure(t *testing.T) {
	release := make(chan struct{})
	cause := stderrors.New("script 404")
	load, calls := counting(release, cause)
	p := New(Config[*handle]{Name: "duckdb", Load: load})

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.GetOrInit(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.Same(t, cause, err)
	}
	assert.False(t, p.Cached())
}

func TestGetOrInit_FailureAllowsRetry(t *testing.T) {
	var n int
	p := New(Config[*handle]{
		Name: "python",
		Load: func(context.Context) (*handle, error) {
			n++
			if n == 1 {
				return nil, stderrors.New("transient")
			}
			return &handle{id: n}, nil
		},
	})

	_, err := p.GetOrInit(context.Background())
	require.Error(t, err)

	h, err := p.GetOrInit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.id)
	assert.True(t, p.Cached())
}

func TestGetOrInit_CachedHandleReturnedWithoutLoading(t *testing.T) {
	load, calls := counting(nil, nil)
	p := New(Config[*handle]{Name: "sqlite", Load: load})

	first, err := p.GetOrInit(context.Background())
	require.NoError(t, err)
	second, err := p.GetOrInit(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrInit_CallerCancellationDoesNotAbortSharedLoad(t *testing.T) {
	release := make(chan struct{})
	load, calls := counting(release, nil)
	p := New(Config[*handle]{Name: "sqlite", Load: load})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.GetOrInit(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	h, err := p.GetOrInit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.id)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTerminate_ThenGetOrInitLoadsFresh(t *testing.T) {
	load, calls := counting(nil, nil)
	p := New(Config[*handle]{Name: "sqlite", Load: load, Close: closer})

	first, err := p.GetOrInit(context.Background())
	require.NoError(t, err)

	p.Terminate(context.Background())
	assert.True(t, first.closed.Load())
	assert.False(t, p.Cached())
	assert.Equal(t, uint64(1), p.Generation())

	second, err := p.GetOrInit(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, second.closed.Load())
}

func TestTerminate_DuringLoadDiscardsLateHandle(t *testing.T) {
	release := make(chan struct{})
	var loaded []*handle
	var mu sync.Mutex
	var n atomic.Int32
	p := New(Config[*handle]{
		Name: "python",
		Load: func(context.Context) (*handle, error) {
			id := n.Add(1)
			if id == 1 {
				<-release
			}
			h := &handle{id: int(id)}
			mu.Lock()
			loaded = append(loaded, h)
			mu.Unlock()
			return h, nil
		},
		Close: closer,
	})

	resCh := make(chan *handle, 1)
	go func() {
		h, err := p.GetOrInit(context.Background())
		assert.NoError(t, err)
		resCh <- h
	}()

	time.Sleep(10 * time.Millisecond)
	p.Terminate(context.Background())
	close(release)

	h := <-resCh
	assert.Equal(t, 2, h.id, "waiter must retry against the new generation")
	assert.False(t, h.closed.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, loaded, 2)
	assert.True(t, loaded[0].closed.Load(), "late handle must be closed")
}

func TestTerminate_LogsCloseErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	load, _ := counting(nil, nil)
	p := New(Config[*handle]{
		Name:   "duckdb",
		Load:   load,
		Close:  func(context.Context, *handle) error { return stderrors.New("conn already closed") },
		Logger: zap.New(core),
	})

	_, err := p.GetOrInit(context.Background())
	require.NoError(t, err)

	p.Terminate(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("close failed").Len())
	assert.False(t, p.Cached())
}

func TestTerminate_WithoutHandle(t *testing.T) {
	p := New(Config[*handle]{Name: "sqlite"})
	p.Terminate(context.Background())
	assert.Equal(t, uint64(1), p.Generation())
	assert.Equal(t, uint64(0), p.Loads())
}

func TestGetOrInit_PanickingLoader(t *testing.T) {
	p := New(Config[*handle]{
		Name: "python",
		Load: func(context.Context) (*handle, error) { panic("bad module") },
	})

	_, err := p.GetOrInit(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindLoadFailure, errors.KindOf(err))
	assert.Contains(t, err.Error(), "bad module")
	assert.False(t, p.Cached())
}

func TestAcquire_ReportsGeneration(t *testing.T) {
	load, _ := counting(nil, nil)
	p := New(Config[*handle]{Name: "sqlite", Load: load})

	_, gen, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	p.Terminate(context.Background())
	_, gen, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
}
