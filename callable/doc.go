// Package callable exposes Go functions to R as ordinary closures.
//
// Wrap stores the function in a handle table and builds, from a template
// parsed once per Bridge, the closure
//
//	function(...) { .External(".Go", <ptr>, ...) }
//
// where <ptr> is an external pointer tagged with the GoObject symbol. Its
// address packs the bridge's process-unique id above the table handle, so
// bridges sharing one runtime never resolve each other's callables.
// Calling the closure from R enters the owning bridge's Dispatch with that
// address and the call's arguments. When R collects the pointer, its
// finalizer removes the table entry.
//
// Accepted function shapes:
//
//	func(a, b rbridge.Sexp) rbridge.Sexp
//	func(args ...rbridge.Sexp) (rbridge.Sexp, error)
//	func() error
//	callable.HostFunc
//
// Anything else is rejected with a not-callable error.
package callable
