package libr

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/rbridge/errors"
)

func TestCopyLine(t *testing.T) {
	tests := []struct {
		name string
		size int32
		in   string
		want string
	}{
		{"fits", 16, "1+2\n", "1+2\n"},
		{"exact", 5, "abcd", "abcd"},
		{"truncated", 4, "abcdef", "abc"},
		{"empty", 4, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			for i := range buf {
				buf[i] = 0xff
			}
			n := copyLine(&buf[0], tt.size, tt.in)
			if n != len(tt.want) {
				t.Errorf("copied %d bytes, want %d", n, len(tt.want))
			}
			if got := string(buf[:n]); got != tt.want {
				t.Errorf("buffer = %q, want %q", got, tt.want)
			}
			if buf[n] != 0 {
				t.Error("buffer not NUL-terminated")
			}
		})
	}
}

func TestUnboundLib(t *testing.T) {
	l := New()

	if err := l.Bind(nil); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidInput}) {
		t.Errorf("Bind(nil) = %v", err)
	}
	if l.IsInitialized() {
		t.Error("new Lib reports initialized")
	}
	if _, err := l.Parse("1"); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseParse, Kind: errors.KindNotInitialized}) {
		t.Errorf("Parse before start = %v", err)
	}
	if _, err := l.Eval(0, 0); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEval, Kind: errors.KindNotInitialized}) {
		t.Errorf("Eval before start = %v", err)
	}
	if _, err := l.Call(0); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEval, Kind: errors.KindNotInitialized}) {
		t.Errorf("Call before start = %v", err)
	}
	if err := l.Start([]string{"R"}, false); err == nil {
		t.Error("Start on an unbound Lib should fail")
	}

	// End before start must not reach libR.
	l.End(0)
}

func TestTrampolinesWithoutActiveLib(t *testing.T) {
	if active.Load() != nil {
		t.Skip("a Lib is bound in this process")
	}
	if got := onExternal(0); got != 0 {
		t.Errorf("onExternal = %d, want 0", got)
	}
	buf := make([]byte, 8)
	if got := onReadConsole(nil, &buf[0], 8, 0); got != 0 {
		t.Errorf("onReadConsole = %d, want 0", got)
	}
	onFlushConsole()
	onShowMessage(nil)
}
