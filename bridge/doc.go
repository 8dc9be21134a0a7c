// Package bridge connects a consumer to a shared embedded engine.
//
// A Bridge is configured with an Engine: the provider that owns the cold
// start, the routine that executes source text and the normalizer for the
// values it returns. Concrete engines (sqlite, wasi) are thin
// configurations of this type.
//
// Lifecycle of one consumer:
//
//	b := bridge.New(bridge.Engine[*Session]{
//	    Name:     "SQLite",
//	    Provider: prov,
//	    Execute:  runStatements,
//	}, bridge.WithAutoInit())
//
//	if err := b.Initialize(ctx); err != nil {
//	    // Failed: call Initialize again to retry
//	}
//	res := b.Execute(ctx, "SELECT 1 AS x")
//
// Initialization gives up after the consumer's budget (DefaultTimeout
// unless overridden). A load that completes later is cached by the
// provider for future consumers but does not revive this one.
package bridge
