package runtime

import (
	"context"
	"sync"

	"github.com/wippyai/rbridge/libr"
)

var (
	defaultRuntime *Runtime
	defaultOnce    sync.Once
)

// Default returns the process-wide runtime over the real libR, shared by
// every package in the binary.
func Default() *Runtime {
	defaultOnce.Do(func() {
		defaultRuntime = New(libr.New())
	})
	return defaultRuntime
}

// Initialize initializes the process-wide runtime.
func Initialize(ctx context.Context) error {
	return Default().Initialize(ctx)
}

// Finalize finalizes the process-wide runtime.
func Finalize() error {
	return Default().Finalize()
}
