//go:build windows

package locate

import (
	"path/filepath"

	"golang.org/x/sys/windows/registry"

	"github.com/wippyai/rbridge/errors"
)

const registryKey = `SOFTWARE\R-core\R`

var registryHome = func() (string, error) {
	var lastErr error
	for _, root := range []registry.Key{registry.LOCAL_MACHINE, registry.CURRENT_USER} {
		k, err := registry.OpenKey(root, registryKey, registry.QUERY_VALUE)
		if err != nil {
			lastErr = err
			continue
		}
		path, _, err := k.GetStringValue("InstallPath")
		k.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if path != "" {
			return path, nil
		}
	}
	return "", errors.Wrap(errors.PhaseConfig, errors.KindNotFound, lastErr, `registry value `+registryKey+`\InstallPath`)
}

func binaryUnder(home string) string {
	return filepath.Join(home, "bin", "R.exe")
}
