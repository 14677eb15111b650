package runtime

import (
	"bytes"
	"context"
	stderrors "errors"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/atexit"
	"github.com/wippyai/rbridge/console"
	"github.com/wippyai/rbridge/errors"
	"github.com/wippyai/rbridge/internal/rtest"
	"github.com/wippyai/rbridge/session"
)

const (
	testPID  = 4242
	testHome = "/opt/R"
)

type harness struct {
	rt    *Runtime
	fake  *rtest.Fake
	env   session.MapEnv
	exits *atexit.Registry
	out   *bytes.Buffer
	loads int
}

func newHarness(t *testing.T, env session.MapEnv, opts ...Option) *harness {
	t.Helper()
	if env == nil {
		env = session.MapEnv{}
	}
	h := &harness{
		fake:  rtest.New(),
		env:   env,
		exits: atexit.New(),
		out:   &bytes.Buffer{},
	}

	reg := console.NewRegistry()
	reg.InstallDefaults(console.Streams{In: strings.NewReader(""), Out: h.out})

	coord := session.New(env,
		session.WithPID(func() int { return testPID }),
		session.WithExecutable(func() (string, error) { return "/usr/local/bin/app", nil }),
	)

	base := []Option{
		WithHome(HomeFunc(func(context.Context) (string, error) { return testHome, nil })),
		WithLoader(LoaderFunc(func(home string) (*rbridge.LibraryHandle, error) {
			h.loads++
			return &rbridge.LibraryHandle{Path: home + "/lib/libR.so"}, nil
		})),
		WithEnv(env),
		WithSession(coord),
		WithConsole(reg),
		WithExitRegistry(h.exits),
	}
	h.rt = New(h.fake, append(base, opts...)...)
	return h
}

func TestInitialize_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.rt.Initialize(ctx); err != nil {
			t.Fatalf("Initialize #%d: %v", i+1, err)
		}
	}

	if h.fake.StartCalls != 1 {
		t.Errorf("Start ran %d times, want 1", h.fake.StartCalls)
	}
	if h.loads != 1 {
		t.Errorf("library loaded %d times, want 1", h.loads)
	}
	if h.exits.Len() != 1 {
		t.Errorf("exit hooks = %d, want 1", h.exits.Len())
	}
	if h.rt.State() != StateReady {
		t.Errorf("state = %v, want ready", h.rt.State())
	}
	if h.rt.Origin() != OriginThisProcess {
		t.Errorf("origin = %v, want this-process", h.rt.Origin())
	}
}

func TestInitialize_StartsWithArgs(t *testing.T) {
	h := newHarness(t, nil, WithArgs("app", "--vanilla"), WithInteractive(false))
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(h.fake.StartArgs, " "); got != "app --vanilla" {
		t.Errorf("args = %q", got)
	}
	if h.fake.Interactive {
		t.Error("started interactive")
	}
	if h.fake.Lib == nil || h.fake.Lib.Path != testHome+"/lib/libR.so" {
		t.Errorf("bound library = %+v", h.fake.Lib)
	}
}

func TestInitialize_DefaultArgs(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(h.fake.StartArgs, " "); got != "rbridge --quiet --no-save" {
		t.Errorf("args = %q", got)
	}
	if !h.fake.Interactive {
		t.Error("default should be interactive")
	}
}

func TestInitialize_PublishesStatus(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	raw, ok := h.env[session.OutboundKey]
	if !ok {
		t.Fatal("outbound marker not published")
	}
	if raw != "current_pid=4242:executable=/usr/local/bin/app" {
		t.Errorf("marker = %q", raw)
	}
}

func TestInitialize_ExportsHome(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.env["R_HOME"]; got != testHome {
		t.Errorf("R_HOME = %q, want %q", got, testHome)
	}
}

func TestInitialize_KeepsExistingHome(t *testing.T) {
	h := newHarness(t, session.MapEnv{"R_HOME": "/usr/lib/R"})
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.env["R_HOME"]; got != "/usr/lib/R" {
		t.Errorf("R_HOME = %q, overwritten", got)
	}
}

func TestInitialize_ExternallyInitialized(t *testing.T) {
	env := session.MapEnv{session.InboundKey: "PID=4242:executable=/usr/bin/R"}
	h := newHarness(t, env)

	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.fake.StartCalls != 0 {
		t.Errorf("Start ran %d times, want 0", h.fake.StartCalls)
	}
	if h.fake.ForceCalls != 1 {
		t.Errorf("ForceInitialized ran %d times, want 1", h.fake.ForceCalls)
	}
	if h.exits.Len() != 0 {
		t.Errorf("exit hooks = %d, want 0", h.exits.Len())
	}
	if _, ok := h.env[session.OutboundKey]; ok {
		t.Error("external runtime must not publish a marker")
	}
	if h.rt.Origin() != OriginExternal {
		t.Errorf("origin = %v", h.rt.Origin())
	}
	if h.rt.Sentinels().NAInteger != math.MinInt32 {
		t.Error("sentinels not loaded for an adopted runtime")
	}

	if err := h.rt.Finalize(); err != nil {
		t.Fatal(err)
	}
	if h.fake.EndCalls != 0 {
		t.Errorf("End ran %d times for a runtime this process did not start", h.fake.EndCalls)
	}
}

func TestInitialize_OtherProcessMarker(t *testing.T) {
	env := session.MapEnv{session.InboundKey: "PID=1:executable=/usr/bin/R"}
	h := newHarness(t, env)

	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.fake.StartCalls != 1 || h.fake.ForceCalls != 0 {
		t.Errorf("start=%d force=%d, want 1/0", h.fake.StartCalls, h.fake.ForceCalls)
	}
}

func TestInitialize_HomeNotFound(t *testing.T) {
	tests := []struct {
		name string
		home HomeFunc
	}{
		{"error", func(context.Context) (string, error) { return "", stderrors.New("no R") }},
		{"empty", func(context.Context) (string, error) { return "", nil }},
		{"already typed", func(context.Context) (string, error) { return "", errors.HomeNotFound(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, WithHome(tt.home))
			err := h.rt.Initialize(context.Background())
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindConfiguration}) {
				t.Fatalf("err = %v, want configuration error", err)
			}
			msg := err.Error()
			for _, want := range []string{
				"https://www.r-project.org/",
				"R_HOME environment variable",
				"PATH environment variable",
			} {
				if !strings.Contains(msg, want) {
					t.Errorf("message lacks %q", want)
				}
			}
			if h.loads != 0 || h.fake.BindCalls != 0 || h.fake.StartCalls != 0 {
				t.Errorf("native layer touched: loads=%d bind=%d start=%d",
					h.loads, h.fake.BindCalls, h.fake.StartCalls)
			}
			if h.rt.State() != StateUninitialized {
				t.Errorf("state = %v", h.rt.State())
			}
		})
	}
}

func TestInitialize_LoadFailure(t *testing.T) {
	h := newHarness(t, nil, WithLoader(LoaderFunc(func(home string) (*rbridge.LibraryHandle, error) {
		return nil, errors.LibraryNotFound(home + "/lib/libR.so")
	})))
	err := h.rt.Initialize(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindLibraryNotFound}) {
		t.Fatalf("err = %v", err)
	}
	if h.fake.BindCalls != 0 {
		t.Error("Bind called after a failed load")
	}
}

func TestInitialize_StartFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.StartErr = stderrors.New("R_HOME broken")

	err := h.rt.Initialize(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseInit, Kind: errors.KindStartup}) {
		t.Fatalf("err = %v", err)
	}
	if h.rt.State() != StateUninitialized {
		t.Errorf("state = %v, want uninitialized", h.rt.State())
	}
	if h.exits.Len() != 0 {
		t.Error("exit hook registered for a failed start")
	}

	h.fake.StartErr = nil
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.fake.StartCalls != 2 {
		t.Errorf("Start ran %d times, want 2", h.fake.StartCalls)
	}
}

func TestFinalize(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.rt.Finalize(); err != nil {
		t.Fatalf("Finalize before Initialize: %v", err)
	}
	if h.fake.EndCalls != 0 {
		t.Fatal("End ran before Initialize")
	}

	if err := h.rt.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := h.rt.Finalize(); err != nil {
			t.Fatalf("Finalize #%d: %v", i+1, err)
		}
	}
	if h.fake.EndCalls != 1 || h.fake.EndStatus != 0 {
		t.Errorf("End calls=%d status=%d", h.fake.EndCalls, h.fake.EndStatus)
	}
	if _, ok := h.env[session.OutboundKey]; ok {
		t.Error("outbound marker survived Finalize")
	}

	err := h.rt.Initialize(ctx)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseInit, Kind: errors.KindInvalidState}) {
		t.Errorf("Initialize after Finalize = %v", err)
	}
}

func TestFinalize_ViaExitRegistry(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.exits.Run(); err != nil {
		t.Fatal(err)
	}
	if h.fake.EndCalls != 1 {
		t.Errorf("End calls = %d", h.fake.EndCalls)
	}
	if h.rt.State() != StateFinalized {
		t.Errorf("state = %v", h.rt.State())
	}
}

func TestEval(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.rt.Eval("1"); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEval, Kind: errors.KindNotInitialized}) {
		t.Errorf("Eval before Initialize = %v", err)
	}
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	v, err := h.rt.Eval("c(1L, 2L)\nsum(1L, 2L, 3L)")
	if err != nil {
		t.Fatal(err)
	}
	if got := h.fake.Ints(v); len(got) != 1 || got[0] != 6 {
		t.Errorf("last value = %v, want [6]", got)
	}

	v, err = h.rt.Eval("")
	if err != nil {
		t.Fatal(err)
	}
	if v != h.fake.Nil() {
		t.Error("empty source should evaluate to NULL")
	}

	if err := h.rt.Print(h.fake.Int(7)); err != nil {
		t.Fatal(err)
	}
	if got := h.out.String(); got != "[1] 7\n" {
		t.Errorf("printed %q", got)
	}
}

func TestEval_Errors(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		src  string
		kind errors.Kind
	}{
		{"sum(1L,", errors.KindParseIncomplete},
		{"sum(1L))", errors.KindParse},
		{"stop(\"bad\")", errors.KindEval},
		{"undefined_function()", errors.KindEval},
	}
	for _, tt := range tests {
		_, err := h.rt.Eval(tt.src)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != tt.kind {
			t.Errorf("Eval(%q) = %v, want kind %s", tt.src, err, tt.kind)
		}
	}
}

func TestDefineAndWrap(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := h.rt.Define("answer", h.fake.Int(42)); err != nil {
		t.Fatal(err)
	}
	v, err := h.rt.Eval("answer")
	if err != nil {
		t.Fatal(err)
	}
	if got := h.fake.Ints(v); len(got) != 1 || got[0] != 42 {
		t.Errorf("answer = %v", got)
	}

	closure, err := h.rt.Wrap(func(args ...rbridge.Sexp) rbridge.Sexp {
		return h.fake.Int(int32(len(args)))
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.rt.Define("nargs", closure); err != nil {
		t.Fatal(err)
	}
	v, err = h.rt.Eval(`nargs(1, "a", 3L)`)
	if err != nil {
		t.Fatal(err)
	}
	if got := h.fake.Ints(v); len(got) != 1 || got[0] != 3 {
		t.Errorf("nargs = %v", got)
	}

	if err := h.rt.Define("", closure); err == nil {
		t.Error("empty name accepted")
	}
}

func TestRegisterFunc_BeforeAndAfterInitialize(t *testing.T) {
	h := newHarness(t, nil)

	double := func(x rbridge.Sexp) rbridge.Sexp {
		return h.fake.Int(h.fake.Ints(x)[0] * 2)
	}
	if err := h.rt.RegisterFunc("go_double", double); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.fake.Lookup("go_double"); ok {
		t.Fatal("defined before R was ready")
	}

	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	v, err := h.rt.Eval("go_double(21L)")
	if err != nil {
		t.Fatal(err)
	}
	if got := h.fake.Ints(v); got[0] != 42 {
		t.Errorf("go_double(21L) = %v", got)
	}

	if err := h.rt.RegisterFunc("go_one", func() rbridge.Sexp { return h.fake.Int(1) }); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.fake.Lookup("go_one"); !ok {
		t.Error("go_one not defined on a ready runtime")
	}

	if err := h.rt.RegisterFunc("bad", func(int) {}); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCallable, Kind: errors.KindNotCallable}) {
		t.Errorf("bad shape = %v", err)
	}
}

func TestCallablesReleasedOnFinalize(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.rt.Wrap(func() {}); err != nil {
		t.Fatal(err)
	}
	if h.rt.Callables().Len() != 1 {
		t.Fatalf("callables = %d", h.rt.Callables().Len())
	}
	if err := h.rt.Finalize(); err != nil {
		t.Fatal(err)
	}
	if h.rt.Callables().Len() != 0 {
		t.Errorf("callables after Finalize = %d", h.rt.Callables().Len())
	}
	if _, err := h.rt.Wrap(func() {}); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCallable, Kind: errors.KindNotInitialized}) {
		t.Errorf("Wrap after Finalize = %v", err)
	}
}

func TestConsoleAttached(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.rt.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	var got string
	h.rt.Console().InstallPrint(func(text string) { got += text })

	if _, err := h.rt.Eval(`cat("hi")`); err != nil {
		t.Fatal(err)
	}
	if got != "hi" {
		t.Errorf("console received %q", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateUninitialized, "uninitialized"},
		{StateInitializing, "initializing"},
		{StateReady, "ready"},
		{StateFinalized, "finalized"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d) = %q, want %q", tt.s, got, tt.want)
		}
	}
	if OriginNone.String() != "none" || OriginExternal.String() != "external" {
		t.Error("origin names")
	}
}

func TestInitialize_ConfigErrorPassesThrough(t *testing.T) {
	h := newHarness(t, nil, WithHome(HomeFunc(func(context.Context) (string, error) {
		return "", errors.VersionTooOld("4.0.5", "4.1.0")
	})))
	err := h.rt.Initialize(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindVersion}) {
		t.Errorf("err = %v, want the version error unchanged", err)
	}
	if h.loads != 0 {
		t.Error("library loaded after a configuration error")
	}
}

func TestInitialize_SecondRuntimeAdopts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.rt.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	other := New(h.fake,
		WithHome(HomeFunc(func(context.Context) (string, error) { return testHome, nil })),
		WithLoader(LoaderFunc(func(home string) (*rbridge.LibraryHandle, error) {
			return &rbridge.LibraryHandle{Path: home + "/lib/libR.so"}, nil
		})),
		WithEnv(h.env),
		WithExitRegistry(h.exits),
	)
	if err := other.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if h.fake.StartCalls != 1 {
		t.Errorf("Start ran %d times, want 1", h.fake.StartCalls)
	}
	if other.Origin() != OriginExternal {
		t.Errorf("second runtime origin = %v, want external", other.Origin())
	}
	if h.exits.Len() != 1 {
		t.Errorf("exit hooks = %d, want 1", h.exits.Len())
	}

	if err := h.rt.RegisterFunc("go_first", func() rbridge.Sexp { return h.fake.Int(1) }); err != nil {
		t.Fatal(err)
	}
	if err := other.RegisterFunc("go_second", func() rbridge.Sexp { return h.fake.Int(2) }); err != nil {
		t.Fatal(err)
	}
	for src, want := range map[string]int32{"go_first()": 1, "go_second()": 2} {
		v, err := other.Eval(src)
		if err != nil {
			t.Fatalf("%s: %v", src, err)
		}
		if got := h.fake.Ints(v); got[0] != want {
			t.Errorf("%s = %v, want %d", src, got, want)
		}
	}

	if err := other.Finalize(); err != nil {
		t.Fatal(err)
	}
	if h.fake.EndCalls != 0 {
		t.Error("adopting runtime shut R down")
	}
	if err := h.rt.Finalize(); err != nil {
		t.Fatal(err)
	}
	if h.fake.EndCalls != 1 {
		t.Errorf("End ran %d times, want 1", h.fake.EndCalls)
	}
}

func TestInitialize_RetriesFailedDefinitions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.rt.RegisterFunc("go_one", func() rbridge.Sexp { return h.fake.Int(1) }); err != nil {
		t.Fatal(err)
	}

	h.fake.AssignErr = stderrors.New("locked binding")
	err := h.rt.Initialize(ctx)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCallable, Kind: errors.KindEval}) {
		t.Fatalf("err = %v, want definition failure", err)
	}
	if h.rt.State() != StateReady {
		t.Errorf("state = %v, want ready", h.rt.State())
	}
	if got := h.rt.Hosts().Pending(); len(got) != 1 || got[0] != "go_one" {
		t.Errorf("pending = %v", got)
	}

	h.fake.AssignErr = nil
	if err := h.rt.Initialize(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(h.rt.Hosts().Pending()) != 0 {
		t.Errorf("pending after retry = %v", h.rt.Hosts().Pending())
	}
	if _, ok := h.fake.Lookup("go_one"); !ok {
		t.Error("go_one not defined after retry")
	}
	if h.fake.StartCalls != 1 {
		t.Errorf("Start ran %d times, want 1", h.fake.StartCalls)
	}
}
