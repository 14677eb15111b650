package session

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/rbridge/errors"
)

const (
	// InboundKey carries the marker of whoever initialized R in this process.
	InboundKey = "R_SESSION_INITIALIZED"
	// OutboundKey carries this process's own marker once it started R.
	OutboundKey = "GO_SESSION_INITIALIZED"

	// KeyCurrentPID is always present in an Info and holds the reader's pid.
	KeyCurrentPID = "current_pid"
	// KeyPID is the initializer's pid as recorded in the channel.
	KeyPID = "PID"
	// KeyExecutable is the path of the process that published the marker.
	KeyExecutable = "executable"

	tokenSep = ":"
	kvSep    = "="
)

// Env is the accessor for the environment channel.
type Env interface {
	Lookup(key string) (string, bool)
	Setenv(key, value string) error
	Unsetenv(key string) error
}

// OSEnv reads and writes the process environment.
type OSEnv struct{}

func (OSEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }
func (OSEnv) Setenv(key, value string) error    { return os.Setenv(key, value) }
func (OSEnv) Unsetenv(key string) error         { return os.Unsetenv(key) }

// MapEnv is an in-memory Env.
type MapEnv map[string]string

func (m MapEnv) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MapEnv) Setenv(key, value string) error {
	m[key] = value
	return nil
}

func (m MapEnv) Unsetenv(key string) error {
	delete(m, key)
	return nil
}

// Info is an ordered set of unique keys with string values.
type Info struct {
	values map[string]string
	keys   []string
}

// NewInfo creates an empty Info.
func NewInfo() *Info {
	return &Info{values: make(map[string]string)}
}

// Set stores value under key, keeping the position of an existing key.
func (i *Info) Set(key, value string) {
	if _, ok := i.values[key]; !ok {
		i.keys = append(i.keys, key)
	}
	i.values[key] = value
}

// Get returns the value stored under key.
func (i *Info) Get(key string) (string, bool) {
	v, ok := i.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (i *Info) Keys() []string {
	out := make([]string, len(i.keys))
	copy(out, i.keys)
	return out
}

// Len returns the number of keys.
func (i *Info) Len() int {
	return len(i.keys)
}

// String encodes the Info as key=value tokens joined by ':'.
func (i *Info) String() string {
	var b strings.Builder
	for n, k := range i.keys {
		if n > 0 {
			b.WriteString(tokenSep)
		}
		b.WriteString(k)
		b.WriteString(kvSep)
		b.WriteString(i.values[k])
	}
	return b.String()
}

// Coordinator reads and publishes session markers through an Env.
type Coordinator struct {
	env        Env
	pid        func() int
	executable func() (string, error)
	logger     *zap.Logger
	inbound    string
	outbound   string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithKeys overrides the inbound and outbound variable names.
func WithKeys(inbound, outbound string) Option {
	return func(c *Coordinator) {
		if inbound != "" {
			c.inbound = inbound
		}
		if outbound != "" {
			c.outbound = outbound
		}
	}
}

// WithPID overrides the pid source.
func WithPID(pid func() int) Option {
	return func(c *Coordinator) { c.pid = pid }
}

// WithExecutable overrides the executable path source.
func WithExecutable(fn func() (string, error)) Option {
	return func(c *Coordinator) { c.executable = fn }
}

// WithLogger sets the logger used for malformed token warnings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator over env. A nil env means the process environment.
func New(env Env, opts ...Option) *Coordinator {
	if env == nil {
		env = OSEnv{}
	}
	c := &Coordinator{
		env:        env,
		pid:        os.Getpid,
		executable: os.Executable,
		inbound:    InboundKey,
		outbound:   OutboundKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InboundKey returns the variable read by Read.
func (c *Coordinator) InboundKey() string { return c.inbound }

// OutboundKey returns the variable written by WriteStatus.
func (c *Coordinator) OutboundKey() string { return c.outbound }

// Read parses the inbound variable.
func (c *Coordinator) Read() *Info {
	raw, _ := c.env.Lookup(c.inbound)
	return c.parse(raw)
}

// ReadOverride parses raw instead of the inbound variable.
func (c *Coordinator) ReadOverride(raw string) *Info {
	return c.parse(raw)
}

func (c *Coordinator) parse(raw string) *Info {
	info := NewInfo()
	info.Set(KeyCurrentPID, strconv.Itoa(c.pid()))

	if raw == "" {
		return info
	}

	for _, token := range strings.Split(raw, tokenSep) {
		if token == "" {
			continue
		}
		key, value, ok := strings.Cut(token, kvSep)
		if !ok {
			err := errors.MalformedToken(c.inbound, token)
			c.log().Warn("skipping malformed session token",
				zap.String("variable", c.inbound),
				zap.String("token", token),
				zap.Error(err))
			continue
		}
		if key == KeyCurrentPID {
			// the reader's pid always wins
			continue
		}
		info.Set(key, value)
	}
	return info
}

// IsExternallyInitialized reports whether the inbound marker records this
// very process as the initializer of R.
func (c *Coordinator) IsExternallyInitialized() bool {
	return initializedHere(c.Read())
}

// IsExternallyInitializedIn applies the same test to an explicit Info.
func IsExternallyInitializedIn(info *Info) bool {
	return initializedHere(info)
}

func initializedHere(info *Info) bool {
	current, _ := info.Get(KeyCurrentPID)
	recorded, ok := info.Get(KeyPID)
	return ok && recorded == current
}

// Status returns the marker WriteStatus publishes.
func (c *Coordinator) Status() (*Info, error) {
	exe, err := c.executable()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSession, errors.KindNotFound, err, "resolve executable path")
	}
	info := NewInfo()
	info.Set(KeyCurrentPID, strconv.Itoa(c.pid()))
	info.Set(KeyExecutable, exe)
	return info, nil
}

// WriteStatus publishes this process's marker to the outbound variable,
// overwriting any previous value.
func (c *Coordinator) WriteStatus() error {
	info, err := c.Status()
	if err != nil {
		return err
	}
	if err := c.env.Setenv(c.outbound, info.String()); err != nil {
		return errors.Wrap(errors.PhaseSession, errors.KindIO, err, "publish "+c.outbound)
	}
	c.log().Debug("published session status",
		zap.String("variable", c.outbound),
		zap.String("value", info.String()))
	return nil
}

// Clear removes the outbound marker.
func (c *Coordinator) Clear() error {
	if err := c.env.Unsetenv(c.outbound); err != nil {
		return errors.Wrap(errors.PhaseSession, errors.KindIO, err, "clear "+c.outbound)
	}
	return nil
}

// Published returns the parsed outbound marker, if any.
func (c *Coordinator) Published() (*Info, bool) {
	raw, ok := c.env.Lookup(c.outbound)
	if !ok {
		return nil, false
	}
	return c.parse(raw), true
}

func (c *Coordinator) log() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return Logger()
}
