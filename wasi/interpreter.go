package wasi

import (
	"context"

	enginebridge "github.com/wippyai/enginebridge"
	"github.com/wippyai/enginebridge/bridge"
	"github.com/wippyai/enginebridge/provider"
)

// Interpreter is one consumer of the shared interpreter runtime
type Interpreter struct {
	*bridge.Bridge[*Runtime]
}

// NewInterpreter attaches a consumer to prov
func NewInterpreter(prov *provider.Provider[*Runtime], opts ...bridge.Option) *Interpreter {
	return &Interpreter{
		Bridge: bridge.New(bridge.Engine[*Runtime]{
			Name:     prov.Name(),
			Provider: prov,
			Execute: func(ctx context.Context, r *Runtime, source string) (enginebridge.Output, error) {
				return r.Run(ctx, source)
			},
		}, opts...),
	}
}

// ExecuteCode runs source and returns its trimmed stdout, or a failure
// carrying stderr when the program wrote to it.
func (i *Interpreter) ExecuteCode(ctx context.Context, source string) enginebridge.Result {
	return i.Execute(ctx, source)
}
