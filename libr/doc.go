// Package libr binds libR through purego, without cgo.
//
// Lib implements rbridge.Native. Bind resolves R's exported functions and
// globals from the handle produced by the loader; Start runs the embedded
// startup sequence and installs the console trampolines. Each trampoline
// is a single C callback created once per process that forwards to the
// rbridge.Console of the active Lib, the one bound last.
//
// R runs at most once per process. Whether it is running, the `.External`
// dispatchers and the external pointer finalizers are process-wide, so a
// second Lib sees the R the first one started and its Start fails.
//
// R is single threaded. Every method must be called from the goroutine
// that called Start, locked to its OS thread with runtime.LockOSThread.
//
// Go code never unwinds through R frames: errors raised by Go callables
// reached through `.External(".Go", ...)` are written to the console's
// warning stream and the call returns NULL.
//
// Start is implemented for Unix-like systems. On Windows the embedding
// startup sequence is not provided; a runtime initialized by another
// component of the process can still be used after ForceInitialized.
package libr
