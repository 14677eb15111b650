// Package rbridge embeds the R runtime inside a Go process.
//
// The library brokers access to an existing R installation: it locates and
// loads libR, starts the interpreter exactly once per process, routes R's
// console through Go handlers and lets R call Go functions. It does not
// reimplement any of R's semantics.
//
// # Architecture Overview
//
//	rbridge/            Root package with the Native contract and Sexp handles
//	├── runtime/        Lifecycle manager: one-time init, exit finalization
//	├── session/        R_SESSION_INITIALIZED handshake over the environment
//	├── loader/         Locating and loading the libR shared library
//	├── locate/         R home discovery and version checks
//	├── console/        The seven console callback slots
//	├── callable/       Wrapping Go functions as R closures
//	├── handle/         Integer handle table for Go values held by R
//	├── libr/           purego binding of libR implementing Native
//	├── atexit/         Process-exit hook registry
//	├── errors/         Structured error types
//	└── cmd/rbridge/    CLI: home, session, eval and an interactive console
//
// # Quick Start
//
// Here rruntime is github.com/wippyai/rbridge/runtime and runtime is the
// standard library package.
//
//	func init() { runtime.LockOSThread() }
//
//	func main() {
//	    ctx := context.Background()
//	    if err := rruntime.Initialize(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	    defer atexit.Run()
//
//	    v, err := rruntime.Default().Eval("sum(1:10)")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    rruntime.Default().Print(v)
//	}
//
// # Calling Go from R
//
//	fn, err := rt.Wrap(func(args ...rbridge.Sexp) (rbridge.Sexp, error) {
//	    return args[0], nil
//	})
//
// The returned closure can be assigned in an R environment and called like
// any R function; the arguments arrive as raw Sexp handles.
//
// # Thread Safety
//
// R is single-threaded and not reentrant. Initialize and Finalize are
// serialized, but evaluation is not: all calls into R must come from the
// goroutine that initialized it, which must be locked to its OS thread.
// Console callbacks run on that same thread and may block on stdin.
package rbridge
