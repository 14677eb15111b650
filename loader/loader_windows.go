//go:build windows

package loader

import (
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

func linked() (uintptr, bool) {
	var h windows.Handle
	if err := windows.GetModuleHandleEx(0, windows.StringToUTF16Ptr("R.dll"), &h); err != nil {
		return 0, false
	}
	return uintptr(h), true
}

// open puts R's bin and modules directories on PATH so R.dll's
// dependencies resolve, then loads it.
func open(home, path string) (uintptr, error) {
	current := os.Getenv("PATH")
	if updated := PrependSearchPath(current, SearchDirs(home)...); updated != current {
		if err := os.Setenv("PATH", updated); err != nil {
			return 0, err
		}
		Logger().Debug("extended PATH for R", zap.Strings("dirs", SearchDirs(home)))
	}

	dll, err := windows.LoadDLL(path)
	if err != nil {
		return 0, err
	}
	return uintptr(dll.Handle), nil
}
