// Package httpapi serves the query console and the code interpreter over a
// JSON API built on gin.
//
// Every response carries the cross-origin isolation headers, and engine
// binaries are served from the same origin under /engines/. Execution
// endpoints share one token-bucket limiter and answer 429 once it is
// exhausted. Results are returned with status 200 whether or not the
// statement succeeded; the body's success flag tells them apart.
package httpapi
