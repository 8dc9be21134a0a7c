package wasi

import (
	"bytes"
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/errors"
	"github.com/wippyai/enginebridge/loader"
	"github.com/wippyai/enginebridge/provider"
)

// DefaultModule is the well-known location of the interpreter binary
const DefaultModule = "engines/python/python.wasm"

// Config configures the code-interpreter engine
type Config struct {
	// Name identifies the engine in messages; defaults to "Python"
	Name string

	// Module is the path of the WASI command module. It is resolved
	// against FS when set, otherwise against the local file system.
	Module string
	FS     fs.FS

	// Binary, when set, is used instead of reading Module
	Binary []byte

	// Args is argv before the source text, e.g. ["python", "-c"]
	Args []string

	// SourceViaStdin feeds the source on stdin instead of appending it
	// to argv
	SourceViaStdin bool

	// Mounts maps guest paths to host directories, read-only
	Mounts map[string]string

	Env map[string]string

	// MemoryLimitPages caps linear memory per instance in 64KiB pages.
	// 0 keeps the wazero default.
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal
	EnableThreads bool

	// Interpreter forces the interpreter bundle even when the compiler
	// is available
	Interpreter bool

	// VerifySource runs once during cold start and must succeed
	VerifySource string

	// Warmup sources run after verification; failures are only logged
	Warmup []string

	Logger *zap.Logger
}

func (c Config) name() string {
	if c.Name != "" {
		return c.Name
	}
	return "Python"
}

func (c Config) args() []string {
	if c.Args != nil {
		return c.Args
	}
	return []string{"python", "-c"}
}

// Runtime is the engine handle: a wazero runtime with WASI registered and
// the interpreter module compiled into it. Each run is a fresh instance.
type Runtime struct {
	ID     string
	Bundle string

	cfg      Config
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// Close releases the compiled module and the runtime
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.compiled != nil {
		if err := r.compiled.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.runtime != nil {
		if err := r.runtime.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Run executes source in a new instance and captures stdout and stderr
// separately. A non-zero exit with nothing on stderr, a trap or a
// cancelled context is returned as an error.
func (r *Runtime) Run(ctx context.Context, source string) (enginebridge.Output, error) {
	var stdout, stderr bytes.Buffer

	args := append([]string(nil), r.cfg.args()...)
	var stdin io.Reader = strings.NewReader("")
	if r.cfg.SourceViaStdin {
		stdin = strings.NewReader(source)
	} else {
		args = append(args, source)
	}

	mc := wazero.NewModuleConfig().
		WithName("").
		WithArgs(args...).
		WithStdin(stdin).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	for k, v := range r.cfg.Env {
		mc = mc.WithEnv(k, v)
	}
	if len(r.cfg.Mounts) > 0 {
		fsc := wazero.NewFSConfig()
		for guest, host := range r.cfg.Mounts {
			fsc = fsc.WithReadOnlyDirMount(host, guest)
		}
		mc = mc.WithFSConfig(fsc)
	}

	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, mc)
	if mod != nil {
		_ = mod.Close(ctx)
	}

	out := enginebridge.Output{Text: true, Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, errors.Statement(r.cfg.name(), fmt.Errorf("execution interrupted: %w", ctxErr))
	}

	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		if strings.TrimSpace(out.Stderr) != "" {
			return out, nil
		}
		return out, errors.Statement(r.cfg.name(), fmt.Errorf("exit status %d", exit.ExitCode()))
	}
	return out, errors.Statement(r.cfg.name(), err)
}

func readModule(cfg Config) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) {
		if cfg.Binary != nil {
			return cfg.Binary, nil
		}
		path := cfg.Module
		if path == "" {
			path = DefaultModule
		}

		var (
			bin []byte
			err error
		)
		if cfg.FS != nil {
			bin, err = fs.ReadFile(cfg.FS, path)
		} else {
			bin, err = os.ReadFile(path)
		}
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseLoad, "module", path)
		}
		return bin, err
	}
}

func bundles(cfg Config) []loader.Bundle[wazero.RuntimeConfig] {
	return []loader.Bundle[wazero.RuntimeConfig]{
		{
			Name:   "compiler",
			Module: wazero.NewRuntimeConfigCompiler(),
			Requires: func(c loader.Capabilities) bool {
				return !cfg.Interpreter && loader.NeedsCompiler(c)
			},
		},
		{Name: "interpreter", Module: wazero.NewRuntimeConfigInterpreter()},
	}
}

// ColdStart builds a Runtime through the loader phases. module reads the
// binary; callers pass a memoized loader so the read happens once.
func ColdStart(ctx context.Context, cfg Config, module func(context.Context) ([]byte, error)) (*Runtime, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if module == nil {
		module = readModule(cfg)
	}

	r := &Runtime{ID: uuid.NewString(), cfg: cfg}
	log = log.With(zap.String("runtime", r.ID))

	var (
		bin   []byte
		rtCfg wazero.RuntimeConfig
	)

	err := loader.Run(ctx, log, cfg.name(),
		loader.Step("module", func(ctx context.Context) error {
			var err error
			bin, err = module(ctx)
			return err
		}),
		loader.Step("bundle", func(context.Context) error {
			b, err := loader.Select(bundles(cfg), loader.DetectCapabilities())
			if err != nil {
				return err
			}
			r.Bundle, rtCfg = b.Name, b.Module
			return nil
		}),
		loader.Step("worker", func(ctx context.Context) error {
			rtCfg = rtCfg.WithCloseOnContextDone(true)
			if cfg.MemoryLimitPages > 0 {
				rtCfg = rtCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
			}
			if cfg.EnableThreads {
				rtCfg = rtCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
			}
			r.runtime = wazero.NewRuntimeWithConfig(ctx, rtCfg)
			_, err := instantiateHost(ctx, r.runtime)
			return err
		}),
		loader.Step("instantiate", func(ctx context.Context) error {
			compiled, err := r.runtime.CompileModule(ctx, bin)
			if err != nil {
				return err
			}
			r.compiled = compiled
			return nil
		}),
		loader.Step("verify", func(ctx context.Context) error {
			if cfg.VerifySource == "" {
				return nil
			}
			return verify(ctx, r, cfg.VerifySource)
		}),
		loader.Step("warmup", func(ctx context.Context) error {
			for _, src := range cfg.Warmup {
				if err := verify(ctx, r, src); err != nil {
					log.Warn("warmup failed, continuing", zap.Error(err))
				}
			}
			return nil
		}),
	)
	if err != nil {
		if cerr := r.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Debug("close after failed cold start", zap.Error(cerr))
		}
		return nil, err
	}
	return r, nil
}

// verify runs src and treats stderr output as failure
func verify(ctx context.Context, r *Runtime, src string) error {
	out, err := r.Run(ctx, src)
	if err != nil {
		return err
	}
	if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
		return stderrors.New(stderr)
	}
	return nil
}

// NewProvider creates the process-wide interpreter provider. The module
// binary is read once and reused across terminate and re-initialization.
func NewProvider(cfg Config) *provider.Provider[*Runtime] {
	module := loader.NewMemo(readModule(cfg))
	return provider.New(provider.Config[*Runtime]{
		Name: cfg.name(),
		Load: func(ctx context.Context) (*Runtime, error) {
			return ColdStart(ctx, cfg, module.Get)
		},
		Close: func(ctx context.Context, r *Runtime) error {
			return r.Close(ctx)
		},
		Logger: cfg.Logger,
	})
}
