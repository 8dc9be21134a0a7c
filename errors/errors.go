package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Phase indicates where in the engine lifecycle the error occurred
type Phase string

const (
	PhaseLoad       Phase = "load"       // resource load, bundle, instantiate, connect
	PhaseBundle     Phase = "bundle"     // bundle selection
	PhaseInit       Phase = "init"       // consumer readiness
	PhaseExecute    Phase = "execute"    // statement or code execution
	PhaseIntrospect Phase = "introspect" // catalog queries, resets
	PhaseTerminate  Phase = "terminate"  // handle teardown
)

// Kind categorizes the error
type Kind string

const (
	KindLoadFailure   Kind = "load_failure"
	KindTimeout       Kind = "timeout"
	KindStatement     Kind = "statement"
	KindIntrospection Kind = "introspection"
	KindNotReady      Kind = "not_ready"
	KindInvalidInput  Kind = "invalid_input"
	KindTerminated    Kind = "terminated"
	KindUnsupported   Kind = "unsupported"
	KindNotFound      Kind = "not_found"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Engine string
	Step   string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Engine != "" {
		b.WriteString(" in ")
		b.WriteString(e.Engine)
		if e.Step != "" {
			b.WriteByte('/')
			b.WriteString(e.Step)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Message returns the human-readable part of the error without the
// phase/kind prefix. Consumers show this to users.
func (e *Error) Message() string {
	switch {
	case e.Detail != "" && e.Cause != nil:
		return e.Detail + ": " + e.Cause.Error()
	case e.Detail != "":
		return e.Detail
	case e.Cause != nil:
		return e.Cause.Error()
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Engine sets the engine name
func (b *Builder) Engine(name string) *Builder {
	b.err.Engine = name
	return b
}

// Step sets the loader step or operation name
func (b *Builder) Step(step string) *Builder {
	b.err.Step = step
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the failure taxonomy

// LoadFailure creates an error for a failed cold-start step
func LoadFailure(engine, step string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLoadFailure,
		Engine: engine,
		Step:   step,
		Detail: fmt.Sprintf("%s failed", step),
		Cause:  cause,
	}
}

// Timeout creates an initialization timeout error
func Timeout(engine string, budget time.Duration) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindTimeout,
		Engine: engine,
		Detail: fmt.Sprintf("%s initialization timed out (%s)", engine, budget),
	}
}

// Statement creates an error for a statement rejected by the engine
func Statement(engine string, cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindStatement,
		Engine: engine,
		Cause:  cause,
	}
}

// Introspection creates an error for a failed catalog or reset operation
func Introspection(engine, op string, cause error) *Error {
	return &Error{
		Phase:  PhaseIntrospect,
		Kind:   KindIntrospection,
		Engine: engine,
		Step:   op,
		Cause:  cause,
	}
}

// NotReady creates an error for operations issued before readiness
func NotReady(engine string) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindNotReady,
		Engine: engine,
		Detail: fmt.Sprintf("%s not ready", engine),
	}
}

// Terminated creates an error for work superseded by termination
func Terminated(engine string) *Error {
	return &Error{
		Phase:  PhaseTerminate,
		Kind:   KindTerminated,
		Engine: engine,
		Detail: "engine terminated during initialization",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Message extracts the user-facing message from any error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}

// KindOf returns the Kind of the first structured error in the chain,
// or the empty Kind when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
