package fileutils

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// IsCaseSensitive probes whether dir lives on a case-sensitive filesystem
// by creating a temporary file and statting it under a different case. When
// the probe cannot run, it falls back to the platform default.
func IsCaseSensitive(dir string) bool {
	f, err := os.CreateTemp(dir, ".case-probe-*")
	if err != nil {
		return runtime.GOOS != "windows" && runtime.GOOS != "darwin"
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	upper := filepath.Join(dir, strings.ToUpper(filepath.Base(name)))
	_, err = os.Stat(upper)
	return os.IsNotExist(err)
}
