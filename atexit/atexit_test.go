package atexit

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestRun_ReverseOrderOnce(t *testing.T) {
	r := New()
	var order []string
	r.Register("first", func() error { order = append(order, "first"); return nil })
	r.Register("second", func() error { order = append(order, "second"); return nil })

	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if strings.Join(order, ",") != "second,first" {
		t.Errorf("order = %v, want second,first exactly once", order)
	}
}

func TestRun_CombinesErrors(t *testing.T) {
	r := New()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ran := 0
	r.Register("a", func() error { ran++; return errA })
	r.Register("ok", func() error { ran++; return nil })
	r.Register("b", func() error { ran++; return errB })

	err := r.Run()
	if ran != 3 {
		t.Errorf("ran %d hooks, want 3", ran)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("err = %v, want both failures", err)
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("got %d errors, want 2", n)
	}
	if r.Run() != err {
		t.Error("later Run calls should return the first result")
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	r := New()
	after := false
	r.Register("after", func() error { after = true; return nil })
	r.Register("panics", func() error { panic("kaboom") })

	err := r.Run()
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("err = %v", err)
	}
	if !after {
		t.Error("hooks after a panicking one should still run")
	}
}

func TestRegister_AfterRun(t *testing.T) {
	r := New()
	_ = r.Run()

	r.Register("late", func() error { t.Error("late hook ran"); return nil })
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	_ = r.Run()
}

func TestExit(t *testing.T) {
	r := New()
	var code int
	r.exit = func(c int) { code = c }
	ran := false
	r.Register("hook", func() error { ran = true; return nil })

	r.Exit(3)

	if !ran {
		t.Error("Exit should run hooks")
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestWatch_SignalCancelsWithoutRunningHooks(t *testing.T) {
	r := New()
	exited := make(chan int, 1)
	r.exit = func(c int) { exited <- c }
	ran := false
	r.Register("hook", func() error { ran = true; return nil })

	ch := make(chan os.Signal, 1)
	ctx, cancel := r.watch(context.Background(), ch, 0)
	defer cancel()

	ch <- syscall.SIGTERM
	<-ctx.Done()

	if ran {
		t.Error("hooks ran on the signal goroutine")
	}
	if got := r.SignalCode(); got != 128+int(syscall.SIGTERM) {
		t.Errorf("SignalCode = %d, want %d", got, 128+int(syscall.SIGTERM))
	}

	r.Exit(r.SignalCode())
	if !ran {
		t.Error("Exit should run hooks")
	}
	if c := <-exited; c != 128+int(syscall.SIGTERM) {
		t.Errorf("exit code = %d", c)
	}
}

func TestWatch_GraceExpires(t *testing.T) {
	r := New()
	exited := make(chan int, 1)
	r.exit = func(c int) { exited <- c }
	ran := false
	r.Register("hook", func() error { ran = true; return nil })

	ch := make(chan os.Signal, 1)
	_, cancel := r.watch(context.Background(), ch, 10*time.Millisecond)
	defer cancel()
	ch <- os.Interrupt

	select {
	case c := <-exited:
		if c != 128+int(syscall.SIGINT) {
			t.Errorf("exit code = %d", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after the grace period")
	}
	if ran {
		t.Error("hooks must not run from the signal goroutine")
	}
}

func TestWatch_NoSignal(t *testing.T) {
	r := New()
	ctx, cancel := r.watch(context.Background(), make(chan os.Signal), time.Millisecond)
	cancel()
	<-ctx.Done()
	if r.SignalCode() != 0 {
		t.Errorf("SignalCode = %d without a signal", r.SignalCode())
	}
}
