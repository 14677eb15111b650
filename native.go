package rbridge

import "strconv"

// Sexp is an opaque reference to a value owned by the R runtime.
// The zero value never refers to a live object.
type Sexp uintptr

// SexpType is R's type code for a Sexp (TYPEOF).
type SexpType int

const (
	NILSXP     SexpType = 0
	SYMSXP     SexpType = 1
	LISTSXP    SexpType = 2
	CLOSXP     SexpType = 3
	ENVSXP     SexpType = 4
	LANGSXP    SexpType = 6
	SPECIALSXP SexpType = 7
	BUILTINSXP SexpType = 8
	LGLSXP     SexpType = 10
	INTSXP     SexpType = 13
	REALSXP    SexpType = 14
	STRSXP     SexpType = 16
	VECSXP     SexpType = 19
	EXPRSXP    SexpType = 20
	EXTPTRSXP  SexpType = 22
)

var sexpTypeNames = map[SexpType]string{
	NILSXP:     "NILSXP",
	SYMSXP:     "SYMSXP",
	LISTSXP:    "LISTSXP",
	CLOSXP:     "CLOSXP",
	ENVSXP:     "ENVSXP",
	LANGSXP:    "LANGSXP",
	SPECIALSXP: "SPECIALSXP",
	BUILTINSXP: "BUILTINSXP",
	LGLSXP:     "LGLSXP",
	INTSXP:     "INTSXP",
	REALSXP:    "REALSXP",
	STRSXP:     "STRSXP",
	VECSXP:     "VECSXP",
	EXPRSXP:    "EXPRSXP",
	EXTPTRSXP:  "EXTPTRSXP",
}

func (t SexpType) String() string {
	if s, ok := sexpTypeNames[t]; ok {
		return s
	}
	return "SEXPTYPE(" + strconv.Itoa(int(t)) + ")"
}

// LibraryHandle identifies the loaded R shared library.
// It is created once per process and never released.
type LibraryHandle struct {
	// Path is the file that was loaded, empty when Linked is set.
	Path string
	// Handle is the platform library handle (dlopen handle or HMODULE).
	Handle uintptr
	// Linked reports that libR was already present in the process.
	Linked bool
}

// Sentinels are R's missing-value markers, readable once R is up.
type Sentinels struct {
	NAInteger int32
	NALogical int32
	NAReal    float64
}

// FileBlock is one (title, file) pair handed to the show-files callback.
type FileBlock struct {
	Title string
	Path  string
}

// Console receives R's console callbacks. The native layer installs its
// trampolines once and forwards every call to the current Console.
type Console interface {
	// WriteConsole receives regular output (warn=false) or
	// warning/error output (warn=true).
	WriteConsole(text string, warn bool)
	FlushConsole()
	// ReadConsole returns one line including its trailing newline.
	ReadConsole(prompt string) (string, error)
	ShowMessage(text string)
	ChooseFile(prompt string) (string, error)
	ShowFiles(blocks []FileBlock, del bool, header, pager string) (int, error)
}

// Dispatcher is the Go side of the `.External(".Go", ptr, ...)` entry
// point. addr is the external pointer's address; args are the call-site
// arguments following it.
type Dispatcher func(addr uintptr, args []Sexp) (Sexp, error)

// Native is the raw bridge to an R runtime. Implementations are not safe
// for concurrent use; see the package documentation.
type Native interface {
	// Bind resolves the runtime's symbols from a loaded library.
	// It must be called before any other method.
	Bind(lib *LibraryHandle) error

	// Start runs R's startup routine with the given command-line args.
	Start(args []string, interactive bool) error
	// End runs R's shutdown routine with the given status.
	End(status int)
	// ForceInitialized marks the runtime as started without running
	// startup, for an R that something else in the process initialized.
	ForceInitialized()
	IsInitialized() bool

	// SetConsole routes the seven console callbacks to c.
	SetConsole(c Console)
	// SetDispatcher registers d as the handler for `.External(name, ...)`.
	SetDispatcher(name string, d Dispatcher)

	Sentinels() Sentinels
	BaseEnv() Sexp
	GlobalEnv() Sexp
	Nil() Sexp

	// Parse parses src into an expression vector.
	Parse(src string) (Sexp, error)
	// Eval evaluates expr in env, trapping R errors.
	Eval(expr, env Sexp) (Sexp, error)
	// Call applies fn to args in the global environment.
	Call(fn Sexp, args ...Sexp) (Sexp, error)
	PrintValue(s Sexp)

	TypeOf(s Sexp) SexpType
	Length(s Sexp) int
	// Element returns the i-th element of a vector, expression or
	// language object (pairlist position for the latter).
	Element(s Sexp, i int) (Sexp, error)
	SetElement(s Sexp, i int, v Sexp) error
	Duplicate(s Sexp) Sexp
	Install(symbol string) Sexp

	// MakeExternalPtr wraps addr as an EXTPTRSXP with the given tag.
	// onCollect, when set, runs after R garbage-collects the pointer.
	MakeExternalPtr(addr uintptr, tag Sexp, onCollect func(addr uintptr)) Sexp
	ExternalPtrAddr(s Sexp) uintptr

	// Preserve protects s from R's garbage collector until Release.
	Preserve(s Sexp)
	Release(s Sexp)
}
