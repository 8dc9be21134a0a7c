// Package loader runs engine cold starts.
//
// A cold start is an ordered list of named phases (load the binary, pick a
// bundle, start the runtime, connect a session). Run executes them, logs
// their timings and turns the first failure into a single load error, so
// no partially built handle escapes.
//
// Memo shares and caches expensive resource loads; Select picks the build
// variant of an engine that the current platform can run.
package loader
