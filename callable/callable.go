package callable

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/errors"
	"github.com/wippyai/rbridge/handle"
)

const (
	// EntryPoint is the `.External` routine name Go callables dispatch through.
	EntryPoint = ".Go"
	// TagSymbol tags the external pointers that carry Go callables.
	TagSymbol = "GoObject"

	shimSource = `function(...) { .External(".Go", foo, ...) }`
)

// idShift splits an external pointer address into the owning bridge's id
// (high bits) and the handle in that bridge's table (low bits).
const idShift = 16 << (^uintptr(0) >> 63)

const (
	maxHandle = handle.Handle(1)<<idShift - 1
	maxID     = uint64(^uintptr(0) >> idShift)
)

// bridges maps ids to live bridges. Every bridge registers the same
// package-level dispatcher, so a closure always reaches the bridge that
// made it no matter how many bridges share a native runtime.
var (
	bridgesMu sync.RWMutex
	bridges   = make(map[uint64]*Bridge)
	lastID    atomic.Uint64
)

func address(id uint64, h handle.Handle) uintptr {
	return uintptr(id)<<idShift | uintptr(h)
}

func split(addr uintptr) (uint64, handle.Handle) {
	return uint64(addr >> idShift), handle.Handle(addr) & maxHandle
}

func dispatch(addr uintptr, args []rbridge.Sexp) (rbridge.Sexp, error) {
	id, _ := split(addr)
	bridgesMu.RLock()
	b := bridges[id]
	bridgesMu.RUnlock()
	if b == nil {
		return 0, errors.NotFound(errors.PhaseCallable, "callable", fmt.Sprintf("%#x", addr))
	}
	return b.Dispatch(addr, args)
}

// splicePath locates the placeholder `foo` inside the parsed shim:
// expression 0, the function's body, the body's first call, argument 2.
var splicePath = []int{0, 2, 1, 2}

// Bridge turns Go functions into R closures.
type Bridge struct {
	id       uint64
	native   rbridge.Native
	table    *handle.Table
	logger   *zap.Logger
	template rbridge.Sexp
	mu       sync.Mutex
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge's logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithTable stores callables in t instead of a private table.
func WithTable(t *handle.Table) Option {
	return func(b *Bridge) { b.table = t }
}

// New creates a bridge and registers its dispatcher with native.
// The shim template is parsed lazily on the first Wrap, so New may be
// called before R is initialized.
//
// Any number of bridges may share one native runtime; each keeps its own
// callables.
func New(native rbridge.Native, opts ...Option) *Bridge {
	b := &Bridge{
		id:     lastID.Add(1),
		native: native,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.table == nil {
		b.table = handle.NewTable()
	}

	bridgesMu.Lock()
	bridges[b.id] = b
	bridgesMu.Unlock()

	native.SetDispatcher(EntryPoint, dispatch)
	return b
}

func (b *Bridge) log() *zap.Logger {
	if b.logger != nil {
		return b.logger
	}
	return Logger()
}

// shim returns the preserved template, parsing it on first use.
func (b *Bridge) shim() (rbridge.Sexp, error) {
	if b.template != 0 {
		return b.template, nil
	}
	t, err := b.native.Parse(shimSource)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCallable, errors.KindParse, err, "parse callable shim")
	}
	b.native.Preserve(t)
	b.template = t
	return t, nil
}

// Wrap returns an R closure that forwards its arguments to fn.
//
// fn must be a HostFunc or a function over rbridge.Sexp values; any other
// value fails with a not-callable error before anything is allocated in R.
// The closure is not protected from R's garbage collector; Preserve it if
// it must outlive the next allocation.
func (b *Bridge) Wrap(fn any) (rbridge.Sexp, error) {
	hf, err := adapt(fn)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tmpl, err := b.shim()
	if err != nil {
		return 0, err
	}

	if b.id > maxID {
		return 0, errors.InvalidState(errors.PhaseCallable, "too many callable bridges in this process")
	}
	h, err := b.table.Insert(handle.TypeFunc, hf)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCallable, errors.KindInvalidState, err, "store callable")
	}
	if h > maxHandle {
		b.table.Remove(h)
		return 0, errors.InvalidState(errors.PhaseCallable, "too many live callables")
	}

	closure, err := b.instantiate(tmpl, h)
	if err != nil {
		b.table.Remove(h)
		return 0, err
	}

	b.log().Debug("wrapped callable",
		zap.Uint64("handle", uint64(h)),
		zap.String("go_type", fmt.Sprintf("%T", fn)))
	return closure, nil
}

func (b *Bridge) instantiate(tmpl rbridge.Sexp, h handle.Handle) (rbridge.Sexp, error) {
	n := b.native

	ptr := n.MakeExternalPtr(address(b.id, h), n.Install(TagSymbol), b.collect)
	n.Preserve(ptr)
	defer n.Release(ptr)

	expr := n.Duplicate(tmpl)
	n.Preserve(expr)
	defer n.Release(expr)

	parent := expr
	last := len(splicePath) - 1
	for _, i := range splicePath[:last] {
		next, err := n.Element(parent, i)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseCallable, errors.KindInvalidState, err, "walk callable shim")
		}
		parent = next
	}
	if err := n.SetElement(parent, splicePath[last], ptr); err != nil {
		return 0, errors.Wrap(errors.PhaseCallable, errors.KindInvalidState, err, "splice callable shim")
	}

	def, err := n.Element(expr, 0)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCallable, errors.KindInvalidState, err, "read callable shim")
	}
	return n.Eval(def, n.BaseEnv())
}

// collect runs when R garbage-collects a callable's external pointer.
func (b *Bridge) collect(addr uintptr) {
	id, h := split(addr)
	if id != b.id {
		return
	}
	if _, ok := b.table.Remove(h); ok {
		b.log().Debug("released callable", zap.Uint64("handle", uint64(addr)))
	}
}

// Dispatch finds the function behind addr and calls it with args. The
// `.External(".Go", ptr, ...)` entry point routes here by the bridge id
// carried in addr. A panic in the function is
// recovered and returned as an error so it never unwinds through R.
func (b *Bridge) Dispatch(addr uintptr, args []rbridge.Sexp) (result rbridge.Sexp, err error) {
	id, h := split(addr)
	var v any
	ok := id == b.id
	if ok {
		v, ok = b.table.GetTyped(h, handle.TypeFunc)
	}
	if !ok {
		return 0, errors.NotFound(errors.PhaseCallable, "callable", fmt.Sprintf("%#x", addr))
	}

	defer func() {
		if r := recover(); r != nil {
			b.log().Error("callable panicked",
				zap.Uint64("handle", uint64(addr)),
				zap.Any("panic", r))
			result, err = 0, errors.CallbackPanic(r)
		}
	}()

	result, err = v.(HostFunc)(args)
	if err != nil {
		return 0, err
	}
	if result == 0 {
		result = b.native.Nil()
	}
	return result, nil
}

// Len reports how many wrapped functions R still references.
func (b *Bridge) Len() int {
	return b.table.Len()
}

// Close releases the shim template and forgets every callable.
func (b *Bridge) Close() error {
	bridgesMu.Lock()
	delete(bridges, b.id)
	bridgesMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.template != 0 {
		b.native.Release(b.template)
		b.template = 0
	}
	return b.table.Close()
}
