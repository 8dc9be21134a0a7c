package enginebridge

import (
	"encoding/json"
	"time"
)

// ResultKind discriminates the variants of Result
type ResultKind uint8

const (
	KindRows ResultKind = iota + 1
	KindText
	KindFailure
)

func (k ResultKind) String() string {
	switch k {
	case KindRows:
		return "rows"
	case KindText:
		return "text"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of one execution. Build it with Rows, Text or
// Failure; it is not modified after construction.
type Result struct {
	Kind     ResultKind
	Columns  []string
	Rows     [][]any
	RowCount int
	Stdout   string
	Error    string
	Elapsed  time.Duration
}

// Rows creates a tabular success result
func Rows(columns []string, rows [][]any, elapsed time.Duration) Result {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = [][]any{}
	}
	return Result{
		Kind:     KindRows,
		Columns:  columns,
		Rows:     rows,
		RowCount: len(rows),
		Elapsed:  elapsed,
	}
}

// Text creates a captured-output success result
func Text(stdout string, elapsed time.Duration) Result {
	return Result{Kind: KindText, Stdout: stdout, Elapsed: elapsed}
}

// Failure creates a failed result carrying a human-readable message
func Failure(msg string, elapsed time.Duration) Result {
	if msg == "" {
		msg = "unknown error"
	}
	return Result{Kind: KindFailure, Error: msg, Elapsed: elapsed}
}

// Success reports whether the result is a rows or text variant
func (r Result) Success() bool {
	return r.Kind == KindRows || r.Kind == KindText
}

// ElapsedMillis returns the elapsed time in fractional milliseconds
func (r Result) ElapsedMillis() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

// MarshalJSON encodes only the fields of the active variant
func (r Result) MarshalJSON() ([]byte, error) {
	ms := r.ElapsedMillis()
	switch r.Kind {
	case KindRows:
		return json.Marshal(struct {
			Success   bool     `json:"success"`
			Columns   []string `json:"columns"`
			Rows      [][]any  `json:"rows"`
			RowCount  int      `json:"rowCount"`
			ElapsedMs float64  `json:"elapsedMs"`
		}{true, r.Columns, r.Rows, r.RowCount, ms})
	case KindText:
		return json.Marshal(struct {
			Success   bool    `json:"success"`
			Output    string  `json:"output"`
			ElapsedMs float64 `json:"elapsedMs"`
		}{true, r.Stdout, ms})
	default:
		return json.Marshal(struct {
			Success   bool    `json:"success"`
			Error     string  `json:"error"`
			ElapsedMs float64 `json:"elapsedMs"`
		}{false, r.Error, ms})
	}
}

// Output is the raw result of an engine's execute routine, before
// normalization. Query engines fill Columns and Rows; code engines set
// Text and fill Stdout and Stderr.
type Output struct {
	Columns []string
	Rows    [][]any
	Stdout  string
	Stderr  string
	Text    bool
}
