//go:build linux || darwin || freebsd

package libr

import (
	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

func lookup(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func cString(p *byte) string {
	return unix.BytePtrToString(p)
}
