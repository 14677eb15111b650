// Package atexit runs registered hooks once when the process is about to
// exit.
//
// Go has no process-exit callback: deferred functions do not run on
// os.Exit and the runtime does not notify packages at shutdown. A Registry
// collects hooks and runs them when the program calls Run or Exit. On
// SIGINT or SIGTERM, NotifySignals cancels a context so the program can
// unwind to the goroutine that owns its resources before running them.
// Hooks run in reverse registration order, at most once per Registry.
//
//	defer atexit.Run()
//	atexit.Register("r", rt.Finalize)
package atexit
