// Package locate finds the R installation to embed.
//
// The home directory is taken, in order, from the R_HOME environment
// variable, from `R RHOME` run against the PATH, and on Windows from the
// InstallPath value R's installer writes to the registry.
package locate

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"

	"github.com/wippyai/rbridge/errors"
)

// EnvHome is the environment variable naming R's home directory.
const EnvHome = "R_HOME"

// Source records how a home directory was found.
type Source string

const (
	SourceEnv      Source = "env"
	SourceCommand  Source = "command"
	SourceRegistry Source = "registry"
	SourceConfig   Source = "config"
)

// Locator discovers R's home directory.
type Locator struct {
	lookupEnv func(string) (string, bool)
	command   func(ctx context.Context, name string, args ...string) ([]byte, error)
	registry  func() (string, error)
	logger    *zap.Logger
	fixed     string
	binary    string
}

// Option configures a Locator.
type Option func(*Locator)

// WithHome pins the home directory, bypassing discovery.
func WithHome(home string) Option {
	return func(l *Locator) { l.fixed = home }
}

// WithBinary sets the R executable used for `R RHOME` and `R --version`.
func WithBinary(name string) Option {
	return func(l *Locator) { l.binary = name }
}

// WithLogger sets the locator's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Locator) { l.logger = logger }
}

// New creates a locator using the process environment.
func New(opts ...Option) *Locator {
	l := &Locator{
		lookupEnv: os.LookupEnv,
		command:   runCommand,
		registry:  registryHome,
		binary:    "R",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Default returns a locator over the process environment.
func Default() *Locator {
	return New()
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, msg)
		}
		return nil, err
	}
	return out, nil
}

func (l *Locator) log() *zap.Logger {
	if l.logger != nil {
		return l.logger
	}
	return Logger()
}

// Home returns R's home directory.
func (l *Locator) Home(ctx context.Context) (string, error) {
	home, _, err := l.Find(ctx)
	return home, err
}

// Find returns R's home directory and where it was found. When every
// source fails the error is errors.HomeNotFound with the last cause.
func (l *Locator) Find(ctx context.Context) (string, Source, error) {
	if l.fixed != "" {
		return l.fixed, SourceConfig, nil
	}

	if home, ok := l.lookupEnv(EnvHome); ok && strings.TrimSpace(home) != "" {
		return home, SourceEnv, nil
	}

	var cause error
	out, err := l.command(ctx, l.binary, "RHOME")
	if err == nil {
		if home := firstLine(out); home != "" {
			l.log().Debug("R home from command", zap.String("home", home))
			return home, SourceCommand, nil
		}
	} else {
		cause = err
		l.log().Debug("R RHOME failed", zap.Error(err))
	}

	if l.registry != nil {
		home, err := l.registry()
		if err == nil && home != "" {
			return home, SourceRegistry, nil
		}
		if err != nil {
			cause = err
		}
	}

	return "", "", errors.HomeNotFound(cause)
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

var versionPattern = regexp.MustCompile(`R version (\d+)\.(\d+)\.(\d+)`)

// ParseVersion extracts the version from `R --version` output.
func ParseVersion(out string) (*semver.Version, error) {
	m := versionPattern.FindStringSubmatch(out)
	if m == nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindVersion).
			Detail("no version in %q", firstLine([]byte(out))).
			Build()
	}
	return semver.NewVersion(m[1] + "." + m[2] + "." + m[3])
}

// Version runs the R executable found under home, or on the PATH when
// home is empty, and returns its version.
func (l *Locator) Version(ctx context.Context, home string) (*semver.Version, error) {
	bin := l.binary
	if home != "" {
		bin = binaryUnder(home)
	}
	out, err := l.command(ctx, bin, "--version")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindVersion, err, "run "+bin+" --version")
	}
	return ParseVersion(string(out))
}

// CheckVersion fails when found is older than minimum. An empty minimum
// accepts any version; "4.1" is read as "4.1.0".
func CheckVersion(found *semver.Version, minimum string) error {
	if minimum == "" {
		return nil
	}
	if strings.Count(minimum, ".") == 1 {
		minimum += ".0"
	}
	want, err := semver.NewVersion(minimum)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "minimum version "+minimum)
	}
	if found.LessThan(*want) {
		return errors.VersionTooOld(found.String(), want.String())
	}
	return nil
}
