// Package rtest provides an in-process stand-in for the R runtime.
//
// Fake implements rbridge.Native over a tiny interpreter that understands
// enough of R's surface syntax to exercise the embedding layer: literals,
// symbols, calls, closures with `...`, braces and `.External`. It records
// lifecycle calls so tests can assert how often startup and shutdown ran.
//
// A Fake is not safe for concurrent use, mirroring the real runtime.
package rtest

import (
	"fmt"
	"math"

	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/errors"
)

// NAReal is the bit pattern R uses for a missing double.
var NAReal = math.Float64frombits(0x7FF00000000007A2)

type builtinFunc func(f *Fake, args []rbridge.Sexp, env rbridge.Sexp) (rbridge.Sexp, error)

type object struct {
	typ   rbridge.SexpType
	sym   string
	ints  []int32
	reals []float64
	strs  []string
	elems []rbridge.Sexp

	// closures
	formals []string
	body    rbridge.Sexp
	env     rbridge.Sexp

	// environments
	vars   map[string]rbridge.Sexp
	parent rbridge.Sexp

	// builtins and specials
	name    string
	builtin builtinFunc

	// external pointers
	addr      uintptr
	tag       rbridge.Sexp
	onCollect func(uintptr)
	collected bool
}

// Fake is a scripted R runtime.
type Fake struct {
	objs      []*object
	symbols   map[string]rbridge.Sexp
	dispatch  map[string]rbridge.Dispatcher
	preserved map[rbridge.Sexp]int
	console   rbridge.Console

	nilValue  rbridge.Sexp
	baseEnv   rbridge.Sexp
	globalEnv rbridge.Sexp

	initialized bool

	// Lib is the handle passed to the last Bind.
	Lib *rbridge.LibraryHandle

	// BindErr and StartErr are returned by Bind and Start when set.
	BindErr  error
	StartErr error
	// AssignErr makes the assign builtin fail when set.
	AssignErr error

	BindCalls   int
	StartCalls  int
	EndCalls    int
	ForceCalls  int
	StartArgs   []string
	Interactive bool
	EndStatus   int
}

var _ rbridge.Native = (*Fake)(nil)

// New creates a fake runtime with its base environment populated.
func New() *Fake {
	f := &Fake{
		objs:      []*object{nil},
		symbols:   make(map[string]rbridge.Sexp),
		dispatch:  make(map[string]rbridge.Dispatcher),
		preserved: make(map[rbridge.Sexp]int),
	}
	f.nilValue = f.alloc(&object{typ: rbridge.NILSXP})
	f.baseEnv = f.newEnv(f.nilValue)
	f.globalEnv = f.newEnv(f.baseEnv)
	f.installBuiltins()
	return f
}

func (f *Fake) alloc(o *object) rbridge.Sexp {
	f.objs = append(f.objs, o)
	return rbridge.Sexp(len(f.objs) - 1)
}

func (f *Fake) get(s rbridge.Sexp) *object {
	if s == 0 || int(s) >= len(f.objs) {
		panic(fmt.Sprintf("rtest: invalid SEXP %d", s))
	}
	return f.objs[s]
}

func (f *Fake) newEnv(parent rbridge.Sexp) rbridge.Sexp {
	return f.alloc(&object{
		typ:    rbridge.ENVSXP,
		vars:   make(map[string]rbridge.Sexp),
		parent: parent,
	})
}

func (f *Fake) Bind(lib *rbridge.LibraryHandle) error {
	f.BindCalls++
	f.Lib = lib
	return f.BindErr
}

func (f *Fake) Start(args []string, interactive bool) error {
	f.StartCalls++
	f.StartArgs = append([]string(nil), args...)
	f.Interactive = interactive
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.initialized {
		return errors.InvalidState(errors.PhaseInit, "R is already running in this process")
	}
	f.initialized = true
	return nil
}

func (f *Fake) End(status int) {
	f.EndCalls++
	f.EndStatus = status
	f.initialized = false
}

func (f *Fake) ForceInitialized() {
	f.ForceCalls++
	f.initialized = true
}

func (f *Fake) IsInitialized() bool { return f.initialized }

func (f *Fake) SetConsole(c rbridge.Console) { f.console = c }

func (f *Fake) SetDispatcher(name string, d rbridge.Dispatcher) {
	f.dispatch[name] = d
}

func (f *Fake) Sentinels() rbridge.Sentinels {
	return rbridge.Sentinels{
		NAInteger: math.MinInt32,
		NALogical: math.MinInt32,
		NAReal:    NAReal,
	}
}

func (f *Fake) BaseEnv() rbridge.Sexp   { return f.baseEnv }
func (f *Fake) GlobalEnv() rbridge.Sexp { return f.globalEnv }
func (f *Fake) Nil() rbridge.Sexp       { return f.nilValue }

func (f *Fake) Parse(src string) (rbridge.Sexp, error) {
	exprs, err := parse(f, src)
	if err != nil {
		if err == errIncomplete {
			return 0, errors.ParseIncomplete(src)
		}
		return 0, errors.ParseFailed(src, err)
	}
	return f.alloc(&object{typ: rbridge.EXPRSXP, elems: exprs}), nil
}

func (f *Fake) Eval(expr, env rbridge.Sexp) (rbridge.Sexp, error) {
	v, err := f.eval(expr, env)
	if err != nil {
		return 0, errors.EvalFailed("Error: " + err.Error())
	}
	return v, nil
}

func (f *Fake) Call(fn rbridge.Sexp, args ...rbridge.Sexp) (rbridge.Sexp, error) {
	v, err := f.applyValue(fn, args, f.globalEnv)
	if err != nil {
		return 0, errors.EvalFailed("Error: " + err.Error())
	}
	return v, nil
}

func (f *Fake) PrintValue(s rbridge.Sexp) {
	if f.console != nil {
		f.console.WriteConsole(f.format(s), false)
	}
}

func (f *Fake) TypeOf(s rbridge.Sexp) rbridge.SexpType { return f.get(s).typ }

func (f *Fake) Length(s rbridge.Sexp) int {
	o := f.get(s)
	switch o.typ {
	case rbridge.NILSXP:
		return 0
	case rbridge.INTSXP, rbridge.LGLSXP:
		return len(o.ints)
	case rbridge.REALSXP:
		return len(o.reals)
	case rbridge.STRSXP:
		return len(o.strs)
	case rbridge.VECSXP, rbridge.EXPRSXP, rbridge.LANGSXP, rbridge.LISTSXP:
		return len(o.elems)
	}
	return 1
}

func (f *Fake) Element(s rbridge.Sexp, i int) (rbridge.Sexp, error) {
	o := f.get(s)
	switch o.typ {
	case rbridge.VECSXP, rbridge.EXPRSXP, rbridge.LANGSXP, rbridge.LISTSXP:
		if i < 0 || i >= len(o.elems) {
			return 0, errors.InvalidInput(errors.PhaseEval, fmt.Sprintf("index %d out of range [0,%d)", i, len(o.elems)))
		}
		return o.elems[i], nil
	}
	return 0, errors.InvalidInput(errors.PhaseEval, fmt.Sprintf("%s has no elements", o.typ))
}

func (f *Fake) SetElement(s rbridge.Sexp, i int, v rbridge.Sexp) error {
	o := f.get(s)
	switch o.typ {
	case rbridge.VECSXP, rbridge.EXPRSXP, rbridge.LANGSXP, rbridge.LISTSXP:
		if i < 0 || i >= len(o.elems) {
			return errors.InvalidInput(errors.PhaseEval, fmt.Sprintf("index %d out of range [0,%d)", i, len(o.elems)))
		}
		o.elems[i] = v
		return nil
	}
	return errors.InvalidInput(errors.PhaseEval, fmt.Sprintf("%s has no elements", o.typ))
}

// Duplicate deep-copies vectors and language objects. Symbols,
// environments, closures and external pointers are shared, as in R.
func (f *Fake) Duplicate(s rbridge.Sexp) rbridge.Sexp {
	o := f.get(s)
	switch o.typ {
	case rbridge.INTSXP, rbridge.LGLSXP, rbridge.REALSXP, rbridge.STRSXP:
		c := *o
		c.ints = append([]int32(nil), o.ints...)
		c.reals = append([]float64(nil), o.reals...)
		c.strs = append([]string(nil), o.strs...)
		return f.alloc(&c)
	case rbridge.VECSXP, rbridge.EXPRSXP, rbridge.LANGSXP, rbridge.LISTSXP:
		c := *o
		c.strs = append([]string(nil), o.strs...)
		c.elems = make([]rbridge.Sexp, len(o.elems))
		for i, e := range o.elems {
			c.elems[i] = f.Duplicate(e)
		}
		return f.alloc(&c)
	}
	return s
}

func (f *Fake) Install(symbol string) rbridge.Sexp {
	if s, ok := f.symbols[symbol]; ok {
		return s
	}
	s := f.alloc(&object{typ: rbridge.SYMSXP, sym: symbol})
	f.symbols[symbol] = s
	return s
}

func (f *Fake) MakeExternalPtr(addr uintptr, tag rbridge.Sexp, onCollect func(uintptr)) rbridge.Sexp {
	return f.alloc(&object{
		typ:       rbridge.EXTPTRSXP,
		addr:      addr,
		tag:       tag,
		onCollect: onCollect,
	})
}

func (f *Fake) ExternalPtrAddr(s rbridge.Sexp) uintptr {
	o := f.get(s)
	if o.typ != rbridge.EXTPTRSXP {
		return 0
	}
	return o.addr
}

func (f *Fake) Preserve(s rbridge.Sexp) { f.preserved[s]++ }

func (f *Fake) Release(s rbridge.Sexp) {
	if f.preserved[s] <= 1 {
		delete(f.preserved, s)
		return
	}
	f.preserved[s]--
}

// Preserved reports whether s is currently protected.
func (f *Fake) Preserved(s rbridge.Sexp) bool { return f.preserved[s] > 0 }

// ObjectCount reports how many objects have been allocated.
func (f *Fake) ObjectCount() int { return len(f.objs) - 1 }

// ExternalPtrs lists the external pointers not yet collected.
func (f *Fake) ExternalPtrs() []rbridge.Sexp {
	var out []rbridge.Sexp
	for i, o := range f.objs {
		if o != nil && o.typ == rbridge.EXTPTRSXP && !o.collected {
			out = append(out, rbridge.Sexp(i))
		}
	}
	return out
}

// Collect simulates R garbage-collecting the external pointer s,
// running its finalizer once.
func (f *Fake) Collect(s rbridge.Sexp) {
	o := f.get(s)
	if o.typ != rbridge.EXTPTRSXP || o.collected {
		return
	}
	o.collected = true
	if o.onCollect != nil {
		o.onCollect(o.addr)
	}
}

// Tag returns the tag of an external pointer.
func (f *Fake) Tag(s rbridge.Sexp) rbridge.Sexp { return f.get(s).tag }

// SymbolName returns the name of a symbol, or "" for other objects.
func (f *Fake) SymbolName(s rbridge.Sexp) string { return f.get(s).sym }

// Define binds name to v in the global environment.
func (f *Fake) Define(name string, v rbridge.Sexp) {
	f.get(f.globalEnv).vars[name] = v
}

// Lookup finds name starting from the global environment.
func (f *Fake) Lookup(name string) (rbridge.Sexp, bool) {
	v, err := f.lookup(name, f.globalEnv)
	return v, err == nil
}

// Int allocates an integer vector.
func (f *Fake) Int(v ...int32) rbridge.Sexp {
	return f.alloc(&object{typ: rbridge.INTSXP, ints: v})
}

// Real allocates a double vector.
func (f *Fake) Real(v ...float64) rbridge.Sexp {
	return f.alloc(&object{typ: rbridge.REALSXP, reals: v})
}

// String allocates a character vector.
func (f *Fake) String(v ...string) rbridge.Sexp {
	return f.alloc(&object{typ: rbridge.STRSXP, strs: v})
}

// Ints returns the contents of an integer or logical vector.
func (f *Fake) Ints(s rbridge.Sexp) []int32 { return f.get(s).ints }

// Reals returns the contents of a double vector.
func (f *Fake) Reals(s rbridge.Sexp) []float64 { return f.get(s).reals }

// Strings returns the contents of a character vector.
func (f *Fake) Strings(s rbridge.Sexp) []string { return f.get(s).strs }
