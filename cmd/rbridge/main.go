// Command rbridge embeds R in a Go process: it locates the installation,
// inspects the session channel, evaluates expressions and runs a console.
package main

import (
	"context"
	"fmt"
	"os"
	goruntime "runtime"
	"time"

	"github.com/wippyai/rbridge/atexit"
)

// shutdownGrace bounds how long a signal waits for R to return to the
// main thread before the process exits without finalizing it.
const shutdownGrace = 5 * time.Second

// R is single-threaded and must stay on the OS thread that started it.
func init() {
	goruntime.LockOSThread()
}

func main() {
	exits := atexit.Default()
	ctx, stop := exits.NotifySignals(context.Background(), shutdownGrace)

	err := newRootCmd(newApp()).ExecuteContext(ctx)

	stop()
	if herr := exits.Run(); herr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", herr)
	}
	if code := exits.SignalCode(); code != 0 {
		os.Exit(code)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
