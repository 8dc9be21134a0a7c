// Package wasi is the code-interpreter engine: a WASI command module, such
// as a WebAssembly build of CPython, compiled once and run on wazero.
//
// Cold start reads the module, picks the compiler or interpreter bundle
// for this platform, starts a runtime with WASI preview1 registered,
// compiles the module and optionally runs a verification program. Warmup
// programs (package preloads) run afterwards on a best-effort basis.
//
// Every execution instantiates the compiled module anonymously with its
// own argv, stdin and two separate buffers for stdout and stderr, so
// interpreter globals do not survive between runs. This is not a REPL
// session: a variable defined by one Execute is not visible to the next,
// and each source must be self-contained. Cancelling the context
// interrupts a running program.
package wasi
