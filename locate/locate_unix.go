//go:build !windows

package locate

import "path/filepath"

// registryHome is only available on Windows.
var registryHome func() (string, error)

func binaryUnder(home string) string {
	return filepath.Join(home, "bin", "R")
}
