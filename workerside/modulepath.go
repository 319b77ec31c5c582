package workerside

import (
	"path/filepath"
	"runtime"
)

// resolveSiblingModulePath derives the filesystem path of a module
// living alongside this package's own source file, using runtime.Caller
// introspection rather than the process's working directory, since the
// latter varies with how the editor was launched and would silently
// resolve to the wrong install. Returns ErrWorkerModuleUnresolvable if
// the runtime cannot report this file's own location.
func resolveSiblingModulePath(name string) (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok || file == "" {
		return "", ErrWorkerModuleUnresolvable
	}
	return filepath.Join(filepath.Dir(file), name), nil
}
