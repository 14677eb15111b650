package atexit

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Hook is a function run at exit. Errors are collected, not fatal.
type Hook func() error

type entry struct {
	fn   Hook
	name string
}

// Registry holds exit hooks.
type Registry struct {
	exit    func(code int)
	hooks   []entry
	err     error
	sigCode atomic.Int32
	once    sync.Once
	mu      sync.Mutex
	started bool
}

// New creates an empty registry whose Exit terminates the process.
func New() *Registry {
	return &Registry{exit: os.Exit}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// Register adds fn under name. Hooks registered after Run started are
// dropped with a warning.
func (r *Registry) Register(name string, fn Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		Logger().Warn("exit hook registered after shutdown started", zap.String("hook", name))
		return
	}
	r.hooks = append(r.hooks, entry{name: name, fn: fn})
}

// Len reports the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks)
}

// Run executes every hook, newest first, and returns their combined
// error. Only the first call runs the hooks; later calls return the
// same result.
func (r *Registry) Run() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.started = true
		hooks := r.hooks
		r.hooks = nil
		r.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			r.err = multierr.Append(r.err, runHook(hooks[i]))
		}
	})
	return r.err
}

func runHook(e entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("exit hook %s panicked: %v", e.name, p)
		}
	}()

	Logger().Debug("running exit hook", zap.String("hook", e.name))
	if err := e.fn(); err != nil {
		Logger().Warn("exit hook failed", zap.String("hook", e.name), zap.Error(err))
		return fmt.Errorf("exit hook %s: %w", e.name, err)
	}
	return nil
}

// Exit runs the hooks and terminates the process with code.
func (r *Registry) Exit(code int) {
	if err := r.Run(); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, e)
		}
	}
	r.exit(code)
}

// NotifySignals returns a copy of ctx that is cancelled when the process
// receives SIGINT or SIGTERM. Hooks never run on the signal goroutine:
// hooks such as R's shutdown must run on the thread that owns R, so the
// caller unwinds there and calls Exit(SignalCode()) or Run itself. If Run
// has not started grace after the signal, the process exits with the
// signal's code without running hooks. A zero grace waits indefinitely.
func (r *Registry) NotifySignals(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := r.watch(ctx, ch, grace)
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

func (r *Registry) watch(parent context.Context, ch <-chan os.Signal, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		var sig os.Signal
		select {
		case sig = <-ch:
		case <-ctx.Done():
			return
		}

		code := 1
		if s, ok := sig.(syscall.Signal); ok {
			code = 128 + int(s)
		}
		r.sigCode.Store(int32(code))
		Logger().Info("signal received, shutting down", zap.String("signal", sig.String()))
		cancel()

		if grace <= 0 {
			return
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		<-timer.C
		if !r.hasStarted() {
			Logger().Warn("shutdown did not start in time, exiting without hooks", zap.Duration("grace", grace))
			r.exit(code)
		}
	}()
	return ctx, cancel
}

// SignalCode returns the exit code for the signal NotifySignals observed,
// 128 plus the signal number, or 0 when none arrived.
func (r *Registry) SignalCode() int {
	return int(r.sigCode.Load())
}

func (r *Registry) hasStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Register adds fn to the default registry.
func Register(name string, fn Hook) { Default().Register(name, fn) }

// Run runs the default registry's hooks.
func Run() error { return Default().Run() }

// Exit runs the default registry's hooks and terminates the process.
func Exit(code int) { Default().Exit(code) }
