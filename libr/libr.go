package libr

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/errors"
)

// active is the Lib the process-wide C trampolines forward to.
var active atomic.Pointer[Lib]

// running reports that R is up in this process, whichever Lib started it
// or adopted it. R cannot run twice in one process.
var running atomic.Bool

// routines holds the `.External` dispatchers and external pointer
// finalizers. They are process-wide like R itself, so a Lib bound later
// still reaches what an earlier one registered.
var routines = struct {
	mu         sync.Mutex
	dispatch   map[string]rbridge.Dispatcher
	finalizers map[uintptr]func(uintptr)
}{
	dispatch:   make(map[string]rbridge.Dispatcher),
	finalizers: make(map[uintptr]func(uintptr)),
}

// Lib is the libR binding.
type Lib struct {
	fn   functions
	vars variables

	console rbridge.Console

	pinner     runtime.Pinner
	handle     uintptr
	errMessage uintptr
	mu         sync.Mutex
	bound      bool
}

var _ rbridge.Native = (*Lib)(nil)

// New creates an unbound Lib.
func New() *Lib {
	return &Lib{}
}

// Bind resolves libR's symbols from lib and makes l the target of the
// process's trampolines.
func (l *Lib) Bind(lib *rbridge.LibraryHandle) error {
	if lib == nil {
		return errors.InvalidInput(errors.PhaseLoad, "nil library handle")
	}
	if l.bound {
		return nil
	}
	if err := bindFunctions(lib.Handle, &l.fn); err != nil {
		return err
	}
	if err := bindVariables(lib.Handle, &l.vars); err != nil {
		return err
	}
	l.handle = lib.Handle
	l.bound = true
	active.Store(l)
	Logger().Debug("bound libR", zap.String("path", lib.Path), zap.Bool("linked", lib.Linked))
	return nil
}

func (l *Lib) End(status int) {
	if !l.bound || !running.CompareAndSwap(true, false) {
		return
	}
	l.fn.endEmbeddedR(int32(status))
	l.errMessage = 0
	l.pinner.Unpin()
}

func (l *Lib) ForceInitialized() {
	running.Store(true)
	if err := l.registerRoutines(); err != nil {
		Logger().Warn("register .External routines", zap.Error(err))
	}
}

// IsInitialized reports whether R is running in this process, including
// when another Lib started it.
func (l *Lib) IsInitialized() bool { return running.Load() }

// ready reports whether l can call into a running R.
func (l *Lib) ready() bool { return l.bound && running.Load() }

func (l *Lib) SetConsole(c rbridge.Console) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = c
}

func (l *Lib) currentConsole() rbridge.Console {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.console
}

func (l *Lib) SetDispatcher(name string, d rbridge.Dispatcher) {
	routines.mu.Lock()
	_, known := routines.dispatch[name]
	routines.dispatch[name] = d
	routines.mu.Unlock()

	if !known && l.ready() {
		if err := l.registerRoutines(); err != nil {
			Logger().Warn("register .External routine", zap.String("name", name), zap.Error(err))
		}
	}
}

func dispatcher(name string) (rbridge.Dispatcher, bool) {
	routines.mu.Lock()
	defer routines.mu.Unlock()
	d, ok := routines.dispatch[name]
	return d, ok
}

// externalMethodDef mirrors R_ExternalMethodDef.
type externalMethodDef struct {
	name    *byte
	fun     uintptr
	numArgs int32
}

// registerRoutines registers every dispatcher name with R's embedding
// DLL so `.External(name, ...)` resolves to the Go trampoline.
func (l *Lib) registerRoutines() error {
	routines.mu.Lock()
	names := make([]string, 0, len(routines.dispatch))
	for name := range routines.dispatch {
		names = append(names, name)
	}
	routines.mu.Unlock()
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	defs := make([]externalMethodDef, len(names)+1)
	var pinner runtime.Pinner
	defer pinner.Unpin()
	tramp := externalTrampoline()
	for i, name := range names {
		cname := append([]byte(name), 0)
		pinner.Pin(&cname[0])
		defs[i] = externalMethodDef{name: &cname[0], fun: tramp, numArgs: -1}
	}
	pinner.Pin(&defs[0])

	info := l.fn.embeddingDllInfo()
	if info == 0 {
		return errors.New(errors.PhaseInit, errors.KindNotFound).Detail("embedding DllInfo unavailable").Build()
	}
	l.fn.registerRoutines(info, 0, 0, 0, uintptrOf(&defs[0]))
	Logger().Debug("registered .External routines", zap.Strings("names", names))
	return nil
}

func (l *Lib) Sentinels() rbridge.Sentinels {
	na := loadInt32(l.vars.naInt)
	return rbridge.Sentinels{
		NAInteger: na,
		NALogical: na,
		NAReal:    loadFloat64(l.vars.naReal),
	}
}

func (l *Lib) BaseEnv() rbridge.Sexp   { return rbridge.Sexp(loadUintptr(l.vars.baseEnv)) }
func (l *Lib) GlobalEnv() rbridge.Sexp { return rbridge.Sexp(loadUintptr(l.vars.globalEnv)) }
func (l *Lib) Nil() rbridge.Sexp       { return rbridge.Sexp(loadUintptr(l.vars.nilValue)) }

func (l *Lib) Parse(src string) (rbridge.Sexp, error) {
	if !l.ready() {
		return 0, errors.NotInitialized(errors.PhaseParse, "R")
	}
	text := l.fn.protect(l.fn.mkString(src))
	defer l.fn.unprotect(1)

	var status int32
	expr := l.fn.parseVector(text, -1, &status, uintptr(l.Nil()))
	switch status {
	case parseOK:
		return rbridge.Sexp(expr), nil
	case parseIncomplete:
		return 0, errors.ParseIncomplete(src)
	}
	return 0, errors.ParseFailed(src, fmt.Errorf("parse status %d", status))
}

func (l *Lib) Eval(expr, env rbridge.Sexp) (rbridge.Sexp, error) {
	if !l.ready() {
		return 0, errors.NotInitialized(errors.PhaseEval, "R")
	}
	var failed int32
	res := l.fn.tryEval(uintptr(expr), uintptr(env), &failed)
	if failed != 0 {
		return 0, errors.EvalFailed(l.lastError())
	}
	return rbridge.Sexp(res), nil
}

// lastError returns R's current error message via geterrmessage().
func (l *Lib) lastError() string {
	if l.errMessage == 0 {
		call := l.fn.lang1(l.fn.install("geterrmessage"))
		l.fn.preserve(call)
		l.errMessage = call
	}
	var failed int32
	res := l.fn.tryEval(l.errMessage, uintptr(l.BaseEnv()), &failed)
	if failed != 0 || l.fn.length(res) < 1 {
		return "unknown R error"
	}
	return l.fn.char(l.fn.stringElt(res, 0))
}

func (l *Lib) Call(fn rbridge.Sexp, args ...rbridge.Sexp) (rbridge.Sexp, error) {
	if !l.ready() {
		return 0, errors.NotInitialized(errors.PhaseEval, "R")
	}
	list := uintptr(l.Nil())
	for i := len(args) - 1; i >= 0; i-- {
		list = l.fn.protect(l.fn.cons(uintptr(args[i]), list))
	}
	call := l.fn.protect(l.fn.lcons(uintptr(fn), list))
	defer l.fn.unprotect(int32(len(args) + 1))

	return l.Eval(rbridge.Sexp(call), l.GlobalEnv())
}

func (l *Lib) PrintValue(s rbridge.Sexp) { l.fn.printValue(uintptr(s)) }

func (l *Lib) TypeOf(s rbridge.Sexp) rbridge.SexpType {
	return rbridge.SexpType(l.fn.typeOf(uintptr(s)))
}

func (l *Lib) Length(s rbridge.Sexp) int { return int(l.fn.length(uintptr(s))) }

func (l *Lib) checkIndex(s rbridge.Sexp, i int) error {
	if n := l.Length(s); i < 0 || i >= n {
		return errors.InvalidInput(errors.PhaseEval, fmt.Sprintf("index %d out of range [0,%d)", i, n))
	}
	return nil
}

func (l *Lib) Element(s rbridge.Sexp, i int) (rbridge.Sexp, error) {
	if err := l.checkIndex(s, i); err != nil {
		return 0, err
	}
	switch t := l.TypeOf(s); t {
	case rbridge.VECSXP, rbridge.EXPRSXP:
		return rbridge.Sexp(l.fn.vectorElt(uintptr(s), i)), nil
	case rbridge.LANGSXP, rbridge.LISTSXP:
		return rbridge.Sexp(l.fn.car(l.fn.nthcdr(uintptr(s), int32(i)))), nil
	default:
		return 0, errors.New(errors.PhaseEval, errors.KindInvalidInput).
			RType(t.String()).
			Detail("not a list, expression or call").
			Build()
	}
}

func (l *Lib) SetElement(s rbridge.Sexp, i int, v rbridge.Sexp) error {
	if err := l.checkIndex(s, i); err != nil {
		return err
	}
	switch t := l.TypeOf(s); t {
	case rbridge.VECSXP, rbridge.EXPRSXP:
		l.fn.setVectorElt(uintptr(s), i, uintptr(v))
	case rbridge.LANGSXP, rbridge.LISTSXP:
		l.fn.setcar(l.fn.nthcdr(uintptr(s), int32(i)), uintptr(v))
	default:
		return errors.New(errors.PhaseEval, errors.KindInvalidInput).
			RType(t.String()).
			Detail("not a list, expression or call").
			Build()
	}
	return nil
}

func (l *Lib) Duplicate(s rbridge.Sexp) rbridge.Sexp {
	return rbridge.Sexp(l.fn.duplicate(uintptr(s)))
}

func (l *Lib) Install(symbol string) rbridge.Sexp {
	return rbridge.Sexp(l.fn.install(symbol))
}

func (l *Lib) MakeExternalPtr(addr uintptr, tag rbridge.Sexp, onCollect func(uintptr)) rbridge.Sexp {
	ptr := l.fn.protect(l.fn.makeExternalPtr(addr, uintptr(tag), uintptr(l.Nil())))
	defer l.fn.unprotect(1)

	if onCollect != nil {
		routines.mu.Lock()
		routines.finalizers[addr] = onCollect
		routines.mu.Unlock()
		l.fn.registerFinalizer(ptr, finalizerTrampoline(), 0)
	}
	return rbridge.Sexp(ptr)
}

func (l *Lib) ExternalPtrAddr(s rbridge.Sexp) uintptr {
	return l.fn.externalPtrAddr(uintptr(s))
}

func (l *Lib) Preserve(s rbridge.Sexp) { l.fn.preserve(uintptr(s)) }
func (l *Lib) Release(s rbridge.Sexp)  { l.fn.release(uintptr(s)) }

// finalize runs the Go finalizer registered for addr, once.
func finalize(addr uintptr) {
	routines.mu.Lock()
	fn := routines.finalizers[addr]
	delete(routines.finalizers, addr)
	routines.mu.Unlock()
	if fn != nil {
		fn(addr)
	}
}

// pairlist collects the CARs of a pairlist.
func (l *Lib) pairlist(p uintptr) []rbridge.Sexp {
	var out []rbridge.Sexp
	nilValue := uintptr(l.Nil())
	for p != nilValue {
		out = append(out, rbridge.Sexp(l.fn.car(p)))
		p = l.fn.cdr(p)
	}
	return out
}
