// Package loader locates and opens R's shared library.
//
// Load is called once per process. The returned handle is never closed:
// unloading libR while R objects are alive is not supported.
package loader

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/errors"
)

// Arch returns R's name for the architecture subdirectory on Windows:
// "x64" for 64-bit pointers, "i386" otherwise.
func Arch() string {
	return archFor(unsafe.Sizeof(uintptr(0)))
}

func archFor(ptrSize uintptr) string {
	if ptrSize == 8 {
		return "x64"
	}
	return "i386"
}

// LibraryPath returns where libR lives under home on this platform.
func LibraryPath(home string) string {
	return libraryPath(home, runtime.GOOS, Arch())
}

func libraryPath(home, goos, arch string) string {
	switch goos {
	case "windows":
		return filepath.Join(home, "bin", arch, "R.dll")
	case "darwin":
		return filepath.Join(home, "lib", "libR.dylib")
	}
	return filepath.Join(home, "lib", "libR.so")
}

// SearchDirs lists the directories that must be on PATH for R.dll's own
// dependencies to resolve on Windows.
func SearchDirs(home string) []string {
	arch := Arch()
	return []string{
		filepath.Join(home, "bin", arch),
		filepath.Join(home, "modules", arch),
	}
}

// PrependSearchPath puts each of dirs in front of the list-separated
// search path current, skipping those already present.
func PrependSearchPath(current string, dirs ...string) string {
	return prependSearchPath(current, string(os.PathListSeparator), dirs...)
}

func prependSearchPath(current, sep string, dirs ...string) string {
	existing := make(map[string]struct{})
	for _, p := range strings.Split(current, sep) {
		if p != "" {
			existing[p] = struct{}{}
		}
	}

	var add []string
	for _, d := range dirs {
		if _, ok := existing[d]; ok || d == "" {
			continue
		}
		existing[d] = struct{}{}
		add = append(add, d)
	}
	if len(add) == 0 {
		return current
	}
	if current == "" {
		return strings.Join(add, sep)
	}
	return strings.Join(add, sep) + sep + current
}

// Loader opens libR at most once.
type Loader struct {
	handle *rbridge.LibraryHandle
	err    error
	logger *zap.Logger
	once   sync.Once
}

// New creates a loader.
func New(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

var (
	defaultLoader     *Loader
	defaultLoaderOnce sync.Once
)

// Default returns the process-wide loader.
func Default() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader = New(nil)
	})
	return defaultLoader
}

func (l *Loader) log() *zap.Logger {
	if l.logger != nil {
		return l.logger
	}
	return Logger()
}

// Load returns the library handle for the R installation at home. If libR
// is already linked into the process it is used as is. Later calls return
// the first result regardless of home.
func (l *Loader) Load(home string) (*rbridge.LibraryHandle, error) {
	l.once.Do(func() {
		l.handle, l.err = l.load(home)
	})
	return l.handle, l.err
}

func (l *Loader) load(home string) (*rbridge.LibraryHandle, error) {
	if h, ok := linked(); ok {
		l.log().Info("using R linked into the process")
		return &rbridge.LibraryHandle{Handle: h, Linked: true}, nil
	}

	path := LibraryPath(home)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.LibraryNotFound(path)
	}

	h, err := open(home, path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindLibraryNotFound, err, "open "+path)
	}
	l.log().Info("loaded R shared library", zap.String("path", path))
	return &rbridge.LibraryHandle{Path: path, Handle: h}, nil
}

// Load opens libR through the default loader.
func Load(home string) (*rbridge.LibraryHandle, error) {
	return Default().Load(home)
}
