package wasi

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	ebadf     = 8          // POSIX EBADF
	invalidFD = 0xFFFFFFFF // -1 as uint32
)

// instantiateHost registers WASI preview1 plus the shims that modules
// built through the preview1 component adapter import alongside it.
func instantiateHost(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasi_snapshot_preview1.ModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)

	noop := api.GoModuleFunc(func(context.Context, api.Module, []uint64) {})
	badfd := func(result uint64) api.GoModuleFunc {
		return func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = result
		}
	}
	i32 := []api.ValueType{api.ValueTypeI32}

	builder.NewFunctionBuilder().
		WithGoModuleFunction(noop, nil, nil).
		Export("reset_adapter_state")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(badfd(ebadf), i32, i32).
		Export("adapter_close_badfd")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(badfd(invalidFD), i32, i32).
		Export("adapter_open_badfd")

	return builder.Instantiate(ctx)
}
