package providers

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var env struct {
	sync.Mutex
	refs int
	path string
}

// Initialize prepares the ONNX Runtime environment. It is reference counted:
// the first call loads the native library and every call must be matched by
// a call to Destroy.
//
// Arguments:
//   - libPath: The shared library path; resolved with GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to load.
func Initialize(libPath string) error {
	env.Lock()
	defer env.Unlock()

	if env.refs > 0 {
		env.refs++
		return nil
	}

	path := GetSharedLibPath(libPath)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf(
			"ONNX Runtime library not found at %s (set %s or onnx.library_path): %w",
			path, LibraryEnv, err,
		)
	}

	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment: %w", err)
	}

	env.refs = 1
	env.path = path
	slog.Debug("onnxruntime initialized", slog.String("library", path))

	return nil
}

// Destroy releases one reference on the environment and tears it down when
// the last one is gone.
func Destroy() error {
	env.Lock()
	defer env.Unlock()

	if env.refs == 0 {
		return nil
	}
	env.refs--
	if env.refs > 0 {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("error destroying ORT environment: %w", err)
	}
	env.path = ""
	return nil
}

// LibraryPath returns the library the environment was initialized with, or
// "" when it is not initialized.
func LibraryPath() string {
	env.Lock()
	defer env.Unlock()
	return env.path
}
