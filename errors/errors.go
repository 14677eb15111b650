package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig   Phase = "config"   // home discovery, configuration
	PhaseLoad     Phase = "load"     // shared library loading
	PhaseSession  Phase = "session"  // session channel parsing
	PhaseInit     Phase = "init"     // runtime startup
	PhaseFinalize Phase = "finalize" // runtime shutdown
	PhaseConsole  Phase = "console"  // console callbacks
	PhaseCallable Phase = "callable" // Go functions called from R
	PhaseParse    Phase = "parse"    // R source parsing
	PhaseEval     Phase = "eval"     // R evaluation
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindLibraryNotFound Kind = "library_not_found"
	KindMalformedToken  Kind = "malformed_token"
	KindNotCallable     Kind = "not_callable"
	KindIO              Kind = "io"
	KindInvalidState    Kind = "invalid_state"
	KindNotInitialized  Kind = "not_initialized"
	KindStartup         Kind = "startup"
	KindParse           Kind = "parse"
	KindParseIncomplete Kind = "parse_incomplete"
	KindEval            Kind = "eval"
	KindCallbackPanic   Kind = "callback_panic"
	KindUnsupported     Kind = "unsupported"
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindVersion         Kind = "version"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	RType  string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "/"))
	}

	if e.GoType != "" || e.RType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.RType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", R type ")
			b.WriteString(e.RType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("R type ")
			b.WriteString(e.RType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.RType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
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

// Path sets the location path (file path, tree index path)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// RType sets the R type name
func (b *Builder) RType(t string) *Builder {
	b.err.RType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
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

// HomeNotFoundMessage is the remediation text shown when the R home
// directory cannot be determined. Its content is part of the public contract.
const HomeNotFoundMessage = `The R home directory could not be determined.

Try to install R <https://www.r-project.org/>,
set the R_HOME environment variable to the R home directory, or
add the directory of the R interpreter to the PATH environment variable.`

// HomeNotFound creates the fatal configuration error raised before any
// native call when no R installation can be located.
func HomeNotFound(cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfiguration,
		Detail: HomeNotFoundMessage,
		Cause:  cause,
	}
}

// LibraryNotFound creates an error for a missing R shared library
func LibraryNotFound(path string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLibraryNotFound,
		Path:   []string{path},
		Detail: fmt.Sprintf("unable to locate the R shared library at %s", path),
		Value:  path,
	}
}

// MalformedToken creates the recoverable error for a session channel token
// that is not of the form key=value.
func MalformedToken(key, token string) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindMalformedToken,
		Detail: fmt.Sprintf("the item %q in %s should be of the form key=value", token, key),
		Value:  token,
	}
}

// NotCallable creates an error for a value that cannot be wrapped for R
func NotCallable(goType, detail string) *Error {
	return &Error{
		Phase:  PhaseCallable,
		Kind:   KindNotCallable,
		GoType: goType,
		Detail: detail,
	}
}

// CallbackPanic creates an error for a Go function that panicked while
// being called from R
func CallbackPanic(v any) *Error {
	return &Error{
		Phase:  PhaseCallable,
		Kind:   KindCallbackPanic,
		Detail: fmt.Sprintf("panic: %v", v),
		Value:  v,
	}
}

// IO creates an I/O error for console operations
func IO(what, path string, cause error) *Error {
	e := &Error{
		Phase:  PhaseConsole,
		Kind:   KindIO,
		Detail: what,
		Cause:  cause,
	}
	if path != "" {
		e.Path = []string{path}
	}
	return e
}

// InvalidState creates an error for an operation in the wrong lifecycle state
func InvalidState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// StartupFailed creates an error for a failed native startup
func StartupFailed(cause error) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindStartup,
		Detail: "start embedded R",
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(src string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindParse,
		Detail: fmt.Sprintf("parse %q", preview(src)),
		Value:  src,
		Cause:  cause,
	}
}

// ParseIncomplete creates an error for source that ends mid-expression
func ParseIncomplete(src string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindParseIncomplete,
		Detail: fmt.Sprintf("incomplete expression %q", preview(src)),
		Value:  src,
	}
}

// EvalFailed creates an evaluation error carrying R's error message
func EvalFailed(message string) *Error {
	return &Error{
		Phase:  PhaseEval,
		Kind:   KindEval,
		Detail: strings.TrimSpace(message),
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

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// VersionTooOld creates an error for an R installation below the minimum
func VersionTooOld(found, minimum string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindVersion,
		Detail: fmt.Sprintf("R version %s is older than the minimum %s", found, minimum),
		Value:  found,
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

func preview(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
