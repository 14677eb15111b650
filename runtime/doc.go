// Package runtime manages the lifecycle of the R runtime embedded in a Go
// process.
//
// # Quick Start
//
//	rt := runtime.Default()
//	if err := rt.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer atexit.Run()
//
//	v, err := rt.Eval("sum(1:10)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt.Print(v)
//
// # Initialization
//
// Initialize locates R's home directory, loads libR, then either runs R's
// startup or, when the inbound session variable names this process as
// the initializer, adopts the already running R. It is idempotent, and a
// runtime that was finalized cannot be started again: R does not support
// re-initialization within one process.
//
// When this runtime ran startup it registers Finalize with the atexit
// registry and publishes its marker in GO_SESSION_INITIALIZED so child
// components can detect it.
//
// # Go Functions
//
// Functions registered before Initialize are defined in R's global
// environment once it is ready:
//
//	rt.RegisterFunc("go_add", func(a, b rbridge.Sexp) (rbridge.Sexp, error) {
//	    return native.Call(plus, a, b)
//	})
//
// # Thread Safety
//
// Initialize and Finalize are serialized by the Runtime. Evaluation is
// not: R itself is single-threaded and every call into it must come from
// the goroutine that initialized it, with that goroutine locked to its OS
// thread (runtime.LockOSThread).
package runtime
