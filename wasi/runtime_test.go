package wasi

import (
	"context"
	"io/fs"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/errors"
	"github.com/wippyai/enginebridge/internal/wasmtest"
)

func newReadyInterpreter(t *testing.T, cfg Config) *Interpreter {
	t.Helper()
	prov := NewProvider(cfg)
	t.Cleanup(func() { prov.Terminate(context.Background()) })

	i := NewInterpreter(prov)
	require.NoError(t, i.Initialize(context.Background()))
	return i
}

func TestInterpreter_Stdout(t *testing.T) {
	i := newReadyInterpreter(t, Config{Binary: wasmtest.Stdout("hello\n")})

	res := i.ExecuteCode(context.Background(), "print('hello')")
	require.True(t, res.Success(), res.Error)
	assert.Equal(t, enginebridge.KindText, res.Kind)
	assert.Equal(t, "hello", res.Stdout)
}

func TestInterpreter_StderrIsFailure(t *testing.T) {
	bin := wasmtest.New().
		Write(1, "partial\n").
		Write(2, "Traceback: NameError\n").
		Exit(1).
		Bytes()
	i := newReadyInterpreter(t, Config{Binary: bin})

	res := i.ExecuteCode(context.Background(), "undefined_name")
	assert.False(t, res.Success())
	assert.Equal(t, "Traceback: NameError", res.Error)
	assert.Equal(t, enginebridge.Ready, i.State().State)
}

func TestInterpreter_StderrWithZeroExitIsFailure(t *testing.T) {
	bin := wasmtest.New().Write(2, "warning\n").Bytes()
	i := newReadyInterpreter(t, Config{Binary: bin})

	res := i.ExecuteCode(context.Background(), "x")
	assert.False(t, res.Success())
	assert.Equal(t, "warning", res.Error)
}

func TestInterpreter_SilentNonZeroExit(t *testing.T) {
	i := newReadyInterpreter(t, Config{Binary: wasmtest.New().Exit(3).Bytes()})

	res := i.ExecuteCode(context.Background(), "raise SystemExit(3)")
	assert.False(t, res.Success())
	assert.Equal(t, "exit status 3", res.Error)
}

func TestInterpreter_ZeroExit(t *testing.T) {
	bin := wasmtest.New().Write(1, "done").Exit(0).Bytes()
	i := newReadyInterpreter(t, Config{Binary: bin})

	res := i.ExecuteCode(context.Background(), "x")
	require.True(t, res.Success(), res.Error)
	assert.Equal(t, "done", res.Stdout)
}

func TestInterpreter_Trap(t *testing.T) {
	i := newReadyInterpreter(t, Config{Binary: wasmtest.New().Trap().Bytes()})

	res := i.ExecuteCode(context.Background(), "x")
	assert.False(t, res.Success())
	assert.Contains(t, res.Error, "unreachable")
	assert.Equal(t, enginebridge.Ready, i.State().State)
}

func TestInterpreter_SourceViaStdin(t *testing.T) {
	i := newReadyInterpreter(t, Config{
		Binary:         wasmtest.New().Echo().Bytes(),
		SourceViaStdin: true,
	})

	res := i.ExecuteCode(context.Background(), "  echoed source  ")
	require.True(t, res.Success(), res.Error)
	assert.Equal(t, "echoed source", res.Stdout)
}

func TestInterpreter_CancelInterrupts(t *testing.T) {
	i := newReadyInterpreter(t, Config{Binary: wasmtest.New().Spin().Bytes()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := i.ExecuteCode(ctx, "while True: pass")
	assert.False(t, res.Success())
	assert.Contains(t, res.Error, "execution interrupted")

	// The runtime survives an interrupted program
	assert.Equal(t, enginebridge.Ready, i.State().State)
}

func TestRuntime_FreshInstancePerRun(t *testing.T) {
	i := newReadyInterpreter(t, Config{Binary: wasmtest.Stdout("same")})

	for range 3 {
		res := i.ExecuteCode(context.Background(), "x")
		require.True(t, res.Success(), res.Error)
		assert.Equal(t, "same", res.Stdout)
	}
}

func TestInterpreter_RunsDoNotShareState(t *testing.T) {
	i := newReadyInterpreter(t, Config{
		Binary:         wasmtest.New().Echo().Bytes(),
		SourceViaStdin: true,
	})

	first := i.ExecuteCode(context.Background(), "answer = 42")
	require.True(t, first.Success(), first.Error)
	assert.Equal(t, "answer = 42", first.Stdout)

	// the second run sees only its own source and output
	second := i.ExecuteCode(context.Background(), "print(x)")
	require.True(t, second.Success(), second.Error)
	assert.Equal(t, "print(x)", second.Stdout)
}

func TestColdStart_VerifyFailure(t *testing.T) {
	prov := NewProvider(Config{
		Binary:       wasmtest.New().Write(2, "ImportError").Bytes(),
		VerifySource: "import sys",
	})
	defer prov.Terminate(context.Background())

	i := NewInterpreter(prov)
	err := i.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindLoadFailure, errors.KindOf(err))
	assert.Contains(t, err.Error(), "verify")
	assert.Equal(t, enginebridge.Failed, i.State().State)
}

func TestColdStart_WarmupFailureTolerated(t *testing.T) {
	i := newReadyInterpreter(t, Config{
		Binary: wasmtest.New().Write(2, "no module named numpy").Bytes(),
		Warmup: []string{"import numpy"},
	})
	assert.Equal(t, enginebridge.Ready, i.State().State)
}

func TestColdStart_MissingModule(t *testing.T) {
	prov := NewProvider(Config{FS: fstest.MapFS{}, Module: "engines/python/python.wasm"})
	defer prov.Terminate(context.Background())

	_, err := prov.GetOrInit(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindLoadFailure, errors.KindOf(err))
	assert.Contains(t, err.Error(), "engines/python/python.wasm")
}

func TestColdStart_InvalidBinary(t *testing.T) {
	prov := NewProvider(Config{Binary: []byte("not wasm")})
	defer prov.Terminate(context.Background())

	_, err := prov.GetOrInit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instantiate")
}

func TestColdStart_InterpreterBundle(t *testing.T) {
	prov := NewProvider(Config{Binary: wasmtest.Stdout("ok"), Interpreter: true})
	defer prov.Terminate(context.Background())

	r, err := prov.GetOrInit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "interpreter", r.Bundle)
	assert.NotEmpty(t, r.ID)
}

type countingFS struct {
	fs.FS
	opens atomic.Int32
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.opens.Add(1)
	return c.FS.Open(name)
}

func TestProvider_ModuleReadOnceAcrossTerminate(t *testing.T) {
	fsys := &countingFS{FS: fstest.MapFS{
		DefaultModule: &fstest.MapFile{Data: wasmtest.Stdout("hi")},
	}}
	prov := NewProvider(Config{FS: fsys})

	first, err := prov.GetOrInit(context.Background())
	require.NoError(t, err)
	prov.Terminate(context.Background())

	second, err := prov.GetOrInit(context.Background())
	require.NoError(t, err)
	defer prov.Terminate(context.Background())

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, uint64(2), prov.Loads())
	assert.Equal(t, int32(1), fsys.opens.Load())
}

func TestConfig_Defaults(t *testing.T) {
	var c Config
	assert.Equal(t, "Python", c.name())
	assert.Equal(t, []string{"python", "-c"}, c.args())

	c = Config{Name: "Lua", Args: []string{}}
	assert.Equal(t, "Lua", c.name())
	assert.Empty(t, c.args())
}
