// Package enginebridge runs heavyweight embedded engines behind one lazy,
// cached, timeout-guarded initialization protocol and presents their output
// in a single normalized result shape.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	enginebridge/        Root package with Result, Output, State and Snapshot
//	├── loader/          Cold-start phases, memoized resource loads, bundle selection
//	├── provider/        Process-wide single-flight handle cache with terminate
//	├── readiness/       Per-consumer state machine with cancellation tokens
//	├── normalize/       Engine scalars to JSON-safe values
//	├── bridge/          Generic execution bridge over a provider
//	├── sqlite/          Query engine on modernc.org/sqlite
//	├── wasi/            Code-interpreter engine on wazero (WASI command modules)
//	├── httpapi/         Gin handlers with cross-origin isolation headers
//	├── errors/          Structured error types for the failure taxonomy
//	└── cmd/             run (CLI and REPL) and playground (HTTP server)
//
// # Quick Start
//
// Construct the provider once and hand it to every consumer:
//
//	prov := sqlite.NewProvider(sqlite.Config{})
//	defer prov.Terminate(ctx)
//
//	console := sqlite.NewConsole(prov)
//	if err := console.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	res := console.ExecuteQuery(ctx, "SELECT 1 AS x")
//	fmt.Println(res.Columns, res.Rows) // [x] [[1]]
//
// # Initialization
//
// A provider runs at most one cold start at a time. Concurrent callers join
// the load in flight; a successful handle is cached until Terminate, a failed
// load is not cached. Each consumer tracks its own readiness and gives up
// after a fixed budget (60 seconds by default). A load that lands after the
// consumer timed out or detached never changes that consumer's state.
//
// # Thread Safety
//
// Providers and bridges are safe for concurrent use. Statements submitted
// through one bridge run sequentially against the shared session.
package enginebridge
