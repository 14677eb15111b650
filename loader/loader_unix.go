//go:build linux || darwin || freebsd

package loader

import (
	"github.com/ebitengine/purego"
)

// linked reports whether libR's symbols already resolve in the process,
// as when the host was linked against libR or R loaded this process.
func linked() (uintptr, bool) {
	if _, err := purego.Dlsym(purego.RTLD_DEFAULT, "Rf_initialize_R"); err != nil {
		return 0, false
	}
	return purego.RTLD_DEFAULT, true
}

// open loads the library with global symbol visibility so that R's
// packages can resolve libR symbols when R loads them.
func open(_, path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}
