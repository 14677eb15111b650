//go:build linux || darwin || freebsd

package libr

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/errors"
)

func TestStart_OncePerProcess(t *testing.T) {
	if running.Load() {
		t.Skip("R is running in this process")
	}
	running.Store(true)
	defer running.Store(false)

	second := New()
	second.bound = true
	err := second.Start([]string{"R"}, false)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseInit, Kind: errors.KindInvalidState}) {
		t.Fatalf("Start while R runs = %v, want invalid state", err)
	}
	if !second.IsInitialized() {
		t.Error("a Lib that did not start R should still see it running")
	}
}

func TestRoutines_SharedAcrossLibs(t *testing.T) {
	const name = ".GoSharedTest"
	defer func() {
		routines.mu.Lock()
		delete(routines.dispatch, name)
		routines.mu.Unlock()
	}()

	first := New()
	first.SetDispatcher(name, func(uintptr, []rbridge.Sexp) (rbridge.Sexp, error) { return 7, nil })

	d, ok := dispatcher(name)
	if !ok {
		t.Fatal("dispatcher registered on one Lib is not visible process-wide")
	}
	if v, _ := d(0, nil); v != 7 {
		t.Errorf("dispatcher returned %d", v)
	}

	called := 0
	routines.mu.Lock()
	routines.finalizers[0x1234] = func(uintptr) { called++ }
	routines.mu.Unlock()
	finalize(0x1234)
	finalize(0x1234)
	if called != 1 {
		t.Errorf("finalizer ran %d times, want 1", called)
	}
}
