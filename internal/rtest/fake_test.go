package rtest

import (
	"errors"
	"strings"
	"testing"

	"github.com/wippyai/rbridge"
	rerrors "github.com/wippyai/rbridge/errors"
)

type captureConsole struct {
	out, warn strings.Builder
}

func (c *captureConsole) WriteConsole(text string, warn bool) {
	if warn {
		c.warn.WriteString(text)
		return
	}
	c.out.WriteString(text)
}
func (c *captureConsole) FlushConsole()                             {}
func (c *captureConsole) ReadConsole(string) (string, error)        { return "typed\n", nil }
func (c *captureConsole) ShowMessage(string)                        {}
func (c *captureConsole) ChooseFile(string) (string, error)         { return "", nil }
func (c *captureConsole) ShowFiles([]rbridge.FileBlock, bool, string, string) (int, error) {
	return 0, nil
}

func evalAll(t *testing.T, f *Fake, src string) rbridge.Sexp {
	t.Helper()
	exprs, err := f.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	result := f.Nil()
	for i := 0; i < f.Length(exprs); i++ {
		e, _ := f.Element(exprs, i)
		result, err = f.Eval(e, f.GlobalEnv())
		if err != nil {
			t.Fatalf("Eval(%q): %v", src, err)
		}
	}
	return result
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		src  string
		kind rerrors.Kind
	}{
		{"f(", rerrors.KindParseIncomplete},
		{"function(x) {", rerrors.KindParseIncomplete},
		{`"open`, rerrors.KindParseIncomplete},
		{"f(1))", rerrors.KindParse},
		{"1 2", rerrors.KindParse},
		{"@", rerrors.KindParse},
	}

	f := New()
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := f.Parse(tt.src)
			if !errors.Is(err, &rerrors.Error{Phase: rerrors.PhaseParse, Kind: tt.kind}) {
				t.Errorf("Parse(%q) err = %v, want kind %s", tt.src, err, tt.kind)
			}
		})
	}
}

func TestEval_Closures(t *testing.T) {
	f := New()

	evalAll(t, f, `assign("add", function(a, b) sum(a, b))`)
	got := evalAll(t, f, "add(2L, 40L)")
	if ints := f.Ints(got); len(ints) != 1 || ints[0] != 42 {
		t.Errorf("add(2L, 40L) = %v", ints)
	}

	got = evalAll(t, f, "(function(...) length(list(...)))(1, 2, 3)")
	if ints := f.Ints(got); len(ints) != 1 || ints[0] != 3 {
		t.Errorf("dots length = %v", ints)
	}
}

func TestEval_Errors(t *testing.T) {
	f := New()

	exprs, err := f.Parse(`stop("bad input")`)
	if err != nil {
		t.Fatal(err)
	}
	e, _ := f.Element(exprs, 0)
	_, err = f.Eval(e, f.GlobalEnv())
	if !errors.Is(err, &rerrors.Error{Phase: rerrors.PhaseEval, Kind: rerrors.KindEval}) {
		t.Fatalf("err = %v, want eval error", err)
	}
	if !strings.Contains(err.Error(), "bad input") {
		t.Errorf("err = %v, want R message", err)
	}

	exprs, _ = f.Parse("missing_fn()")
	e, _ = f.Element(exprs, 0)
	if _, err := f.Eval(e, f.GlobalEnv()); err == nil || !strings.Contains(err.Error(), "could not find function") {
		t.Errorf("err = %v", err)
	}
}

func TestConsoleRouting(t *testing.T) {
	f := New()
	c := &captureConsole{}
	f.SetConsole(c)

	evalAll(t, f, `cat("a", "b")`)
	evalAll(t, f, `warning("careful")`)
	evalAll(t, f, "print(c(1L, NA, 3L))")
	line := evalAll(t, f, `readline("> ")`)

	if c.out.String() != "a b[1] 1 NA 3\n" {
		t.Errorf("out = %q", c.out.String())
	}
	if c.warn.String() != "Warning message:\ncareful\n" {
		t.Errorf("warn = %q", c.warn.String())
	}
	if s := f.Strings(line); len(s) != 1 || s[0] != "typed" {
		t.Errorf("readline = %v", s)
	}
}

func TestExternal(t *testing.T) {
	f := New()
	var gotAddr uintptr
	var gotArgs int
	f.SetDispatcher(".Go", func(addr uintptr, args []rbridge.Sexp) (rbridge.Sexp, error) {
		gotAddr = addr
		gotArgs = len(args)
		return f.String("ok"), nil
	})
	f.Define("ptr", f.MakeExternalPtr(7, f.Install("GoObject"), nil))

	got := evalAll(t, f, `(function(...) .External(".Go", ptr, ...))(1, 2)`)
	if gotAddr != 7 || gotArgs != 2 {
		t.Errorf("dispatcher saw addr=%d args=%d", gotAddr, gotArgs)
	}
	if s := f.Strings(got); len(s) != 1 || s[0] != "ok" {
		t.Errorf("result = %v", s)
	}
}

func TestDuplicateIsDeep(t *testing.T) {
	f := New()
	exprs, err := f.Parse(`function(...) { .External(".Go", foo, ...) }`)
	if err != nil {
		t.Fatal(err)
	}

	dup := f.Duplicate(exprs)
	fn, _ := f.Element(dup, 0)
	body, _ := f.Element(fn, 2)
	call, _ := f.Element(body, 1)
	if err := f.SetElement(call, 2, f.Install("bar")); err != nil {
		t.Fatal(err)
	}

	origFn, _ := f.Element(exprs, 0)
	origBody, _ := f.Element(origFn, 2)
	origCall, _ := f.Element(origBody, 1)
	arg, _ := f.Element(origCall, 2)
	if f.SymbolName(arg) != "foo" {
		t.Errorf("original template modified: %q", f.SymbolName(arg))
	}
}

func TestLifecycleCounters(t *testing.T) {
	f := New()
	if err := f.Start([]string{"R", "--quiet"}, false); err != nil {
		t.Fatal(err)
	}
	f.End(0)
	f.ForceInitialized()

	if f.StartCalls != 1 || f.EndCalls != 1 || f.ForceCalls != 1 {
		t.Errorf("calls start=%d end=%d force=%d", f.StartCalls, f.EndCalls, f.ForceCalls)
	}
	if !f.IsInitialized() {
		t.Error("ForceInitialized should mark the runtime initialized")
	}
}
