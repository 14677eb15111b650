//go:build !linux && !darwin && !freebsd && !windows

package loader

import (
	"github.com/wippyai/rbridge/errors"
)

func linked() (uintptr, bool) { return 0, false }

func open(_, _ string) (uintptr, error) {
	return 0, errors.Unsupported(errors.PhaseLoad, "loading libR on this platform")
}
