package runtime

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/atexit"
	"github.com/wippyai/rbridge/callable"
	"github.com/wippyai/rbridge/console"
	"github.com/wippyai/rbridge/errors"
	"github.com/wippyai/rbridge/loader"
	"github.com/wippyai/rbridge/locate"
	"github.com/wippyai/rbridge/session"
)

// DefaultArgs are the command-line arguments R is started with.
var DefaultArgs = []string{"rbridge", "--quiet", "--no-save"}

const exitHookName = "rbridge.finalize"

// State is the lifecycle state of a Runtime.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFinalized:
		return "finalized"
	}
	return "unknown"
}

// Origin records who started R.
type Origin int

const (
	OriginNone Origin = iota
	// OriginThisProcess means this Runtime ran R's startup and owns shutdown.
	OriginThisProcess
	// OriginExternal means R was already running when Initialize was called.
	OriginExternal
)

func (o Origin) String() string {
	switch o {
	case OriginThisProcess:
		return "this-process"
	case OriginExternal:
		return "external"
	}
	return "none"
}

// HomeProvider resolves R's home directory.
type HomeProvider interface {
	Home(ctx context.Context) (string, error)
}

// HomeFunc adapts a function to HomeProvider.
type HomeFunc func(ctx context.Context) (string, error)

func (f HomeFunc) Home(ctx context.Context) (string, error) { return f(ctx) }

// Loader opens R's shared library.
type Loader interface {
	Load(home string) (*rbridge.LibraryHandle, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(home string) (*rbridge.LibraryHandle, error)

func (f LoaderFunc) Load(home string) (*rbridge.LibraryHandle, error) { return f(home) }

// Runtime owns the lifecycle of the R runtime embedded in this process.
type Runtime struct {
	native    rbridge.Native
	home      HomeProvider
	loader    Loader
	env       session.Env
	session   *session.Coordinator
	console   *console.Registry
	exits     *atexit.Registry
	callables *callable.Bridge
	hosts     *HostRegistry
	logger    *zap.Logger

	args        []string
	sentinels   rbridge.Sentinels
	state       State
	origin      Origin
	interactive bool

	hookOnce sync.Once
	mu       sync.Mutex
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithHome sets how R's home directory is found.
func WithHome(h HomeProvider) Option {
	return func(r *Runtime) { r.home = h }
}

// WithLoader sets how libR is opened.
func WithLoader(l Loader) Option {
	return func(r *Runtime) { r.loader = l }
}

// WithEnv sets the environment R_HOME is exported to.
func WithEnv(env session.Env) Option {
	return func(r *Runtime) { r.env = env }
}

// WithSession sets the session coordinator.
func WithSession(c *session.Coordinator) Option {
	return func(r *Runtime) { r.session = c }
}

// WithConsole sets the console registry. Defaults to stdio handlers.
func WithConsole(c *console.Registry) Option {
	return func(r *Runtime) { r.console = c }
}

// WithExitRegistry sets where the finalizer is registered.
func WithExitRegistry(x *atexit.Registry) Option {
	return func(r *Runtime) { r.exits = x }
}

// WithArgs sets R's command-line arguments. args[0] is the program name.
func WithArgs(args ...string) Option {
	return func(r *Runtime) { r.args = append([]string(nil), args...) }
}

// WithInteractive sets whether R believes it is attached to a user.
func WithInteractive(interactive bool) Option {
	return func(r *Runtime) { r.interactive = interactive }
}

// WithLogger sets the runtime's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// New creates an uninitialized Runtime over native. The console registry
// is attached to native immediately and stays attached.
func New(native rbridge.Native, opts ...Option) *Runtime {
	r := &Runtime{
		native:      native,
		args:        DefaultArgs,
		interactive: true,
		hosts:       NewHostRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = Logger()
	}
	if r.home == nil {
		r.home = locate.Default()
	}
	if r.loader == nil {
		r.loader = loader.Default()
	}
	if r.env == nil {
		r.env = session.OSEnv{}
	}
	if r.session == nil {
		r.session = session.New(r.env, session.WithLogger(r.logger))
	}
	if r.console == nil {
		r.console = console.NewRegistry()
		r.console.InstallDefaults(console.Streams{})
	}
	if r.exits == nil {
		r.exits = atexit.Default()
	}

	r.callables = callable.New(native, callable.WithLogger(r.logger))
	native.SetConsole(r.console)
	return r
}

// Initialize brings R up once and fails after Finalize. When R is already
// running, because another Runtime over the same native binding started it
// or the session channel says another component did, the runtime adopts it
// instead of running startup again.
//
// Functions registered with RegisterFunc or RegisterHost are then defined
// in R. If a definition fails R stays ready and the error lists the
// failures; the next Initialize call retries only those.
func (r *Runtime) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateReady:
		return r.hosts.bind(r.defineFunc)
	case StateFinalized:
		return errors.InvalidState(errors.PhaseInit, "R was finalized and cannot be started again")
	case StateInitializing:
		return errors.InvalidState(errors.PhaseInit, "initialization already in progress")
	}

	home, err := r.home.Home(ctx)
	if err != nil || home == "" {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Phase == errors.PhaseConfig {
			return err
		}
		return errors.HomeNotFound(err)
	}
	if v, ok := r.env.Lookup(locate.EnvHome); !ok || v == "" {
		if err := r.env.Setenv(locate.EnvHome, home); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "export "+locate.EnvHome)
		}
	}

	lib, err := r.loader.Load(home)
	if err != nil {
		return err
	}
	if err := r.native.Bind(lib); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "bind libR")
	}

	if r.native.IsInitialized() || r.session.IsExternallyInitialized() {
		r.native.ForceInitialized()
		r.origin = OriginExternal
		r.logger.Info("adopted externally initialized R", zap.String("home", home))
	} else {
		r.state = StateInitializing
		if err := r.native.Start(r.args, r.interactive); err != nil {
			r.state = StateUninitialized
			return errors.StartupFailed(err)
		}
		r.origin = OriginThisProcess
		r.hookOnce.Do(func() {
			r.exits.Register(exitHookName, r.Finalize)
		})
		if err := r.session.WriteStatus(); err != nil {
			r.logger.Warn("publish session status", zap.Error(err))
		}
		r.logger.Info("R initialized", zap.String("home", home), zap.Strings("args", r.args))
	}

	r.sentinels = r.native.Sentinels()
	r.state = StateReady

	return r.hosts.bind(r.defineFunc)
}

// RegisterFunc defines fn in R's global environment as name. Before
// Initialize the function is queued and defined once R is ready.
func (r *Runtime) RegisterFunc(name string, fn any) error {
	if err := r.hosts.RegisterFunc(name, fn); err != nil {
		return err
	}
	if r.State() != StateReady {
		return nil
	}
	return r.hosts.bind(r.defineFunc, name)
}

// RegisterHost defines every function h exposes, now or at Initialize.
func (r *Runtime) RegisterHost(h Host) error {
	funcs, err := hostFuncs(h)
	if err != nil {
		return err
	}
	for _, name := range sortedNames(funcs) {
		err = multierr.Append(err, r.RegisterFunc(name, funcs[name]))
	}
	return err
}

// Finalize shuts R down if this runtime started it. Later calls, and calls
// on a runtime that never initialized, do nothing.
func (r *Runtime) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateReady {
		return nil
	}

	err := r.callables.Close()
	if r.origin == OriginThisProcess {
		r.native.End(0)
		if cerr := r.session.Clear(); cerr != nil {
			r.logger.Warn("clear session status", zap.Error(cerr))
		}
		r.logger.Info("R finalized")
	}
	r.state = StateFinalized
	return err
}

// State returns the lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Origin reports who started R.
func (r *Runtime) Origin() Origin {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.origin
}

// Sentinels returns R's missing-value markers, loaded at initialization.
func (r *Runtime) Sentinels() rbridge.Sentinels {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sentinels
}

func (r *Runtime) Native() rbridge.Native         { return r.native }
func (r *Runtime) Console() *console.Registry     { return r.console }
func (r *Runtime) Callables() *callable.Bridge    { return r.callables }
func (r *Runtime) Session() *session.Coordinator  { return r.session }
func (r *Runtime) Hosts() *HostRegistry           { return r.hosts }
func (r *Runtime) ExitRegistry() *atexit.Registry { return r.exits }

func (r *Runtime) ready(phase errors.Phase) error {
	if r.State() != StateReady {
		return errors.NotInitialized(phase, "R runtime")
	}
	return nil
}

// quote renders s as an R string literal.
func quote(s string) string {
	return strconv.Quote(s)
}
