//go:build windows

package libr

import (
	"golang.org/x/sys/windows"
)

func lookup(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

func cString(p *byte) string {
	return windows.BytePtrToString(p)
}
