//go:build windows

package libr

import (
	"github.com/wippyai/rbridge/errors"
)

// Start is not provided on Windows, where R's embedding API is driven
// through the Rstart structure rather than the Unix front-end globals.
func (l *Lib) Start(_ []string, _ bool) error {
	return errors.Unsupported(errors.PhaseInit, "starting embedded R on Windows")
}
