package loader

import (
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"

	"github.com/wippyai/enginebridge/errors"
)

// Capabilities describes what the current process can run
type Capabilities struct {
	GOOS   string
	GOARCH string

	// Compiler is true when an ahead-of-time native compiler backend is
	// usable on this platform; otherwise only an interpreter is.
	Compiler bool

	SSE41 bool
}

// DetectCapabilities probes the running platform
func DetectCapabilities() Capabilities {
	caps := Capabilities{
		GOOS:   runtime.GOOS,
		GOARCH: runtime.GOARCH,
		SSE41:  cpu.X86.HasSSE41,
	}
	caps.Compiler = compilerSupported(caps)
	return caps
}

// compilerSupported mirrors the platform gate of wazero's compiler backend
func compilerSupported(c Capabilities) bool {
	switch c.GOOS {
	case "linux", "darwin", "freebsd", "netbsd", "dragonfly", "windows":
		if c.GOARCH == "arm64" {
			return true
		}
		return c.GOARCH == "amd64" && c.SSE41
	case "solaris", "illumos":
		return c.GOARCH == "amd64" && c.SSE41
	default:
		return false
	}
}

// Bundle is a build variant of an engine. Requires reports whether the
// variant can run with the given capabilities; nil means always.
type Bundle[M any] struct {
	Name     string
	Module   M
	Requires func(Capabilities) bool
}

// Select returns the first bundle whose requirement holds
func Select[M any](bundles []Bundle[M], caps Capabilities) (Bundle[M], error) {
	names := make([]string, 0, len(bundles))
	for _, b := range bundles {
		if b.Requires == nil || b.Requires(caps) {
			return b, nil
		}
		names = append(names, b.Name)
	}
	return Bundle[M]{}, errors.New(errors.PhaseBundle, errors.KindUnsupported).
		Detail("no bundle runs on %s/%s (tried %s)", caps.GOOS, caps.GOARCH, strings.Join(names, ", ")).
		Build()
}

// NeedsCompiler is a Requires predicate for compiler-only bundles
func NeedsCompiler(c Capabilities) bool {
	return c.Compiler
}
