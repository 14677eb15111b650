// Package session implements the environment-variable handshake that lets
// several embedders of R share one process.
//
// Another library that already started R in this process (reticulate, a C
// host, ...) advertises it through R_SESSION_INITIALIZED, a colon-separated
// list of key=value tokens:
//
//	PID=4242:R_HOME=/usr/lib/R
//
// When the PID token names the current process, R is already running here
// and must not be started again. After starting R itself, this process
// publishes its own marker under GO_SESSION_INITIALIZED:
//
//	current_pid=4242:executable=/usr/local/bin/app
//
// The channel is process-global mutable state. Writers overwrite rather
// than merge and nothing here takes a lock; call it from startup code on a
// single goroutine.
package session
