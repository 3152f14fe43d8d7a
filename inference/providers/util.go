package providers

import (
	"os"
	"runtime"
)

// LibraryEnv is the environment variable naming the ONNX Runtime shared library.
const LibraryEnv = "ONNXRUNTIME_LIB"

// SharedLibCandidates returns the default shared library locations for the
// current platform, most specific first.
func SharedLibCandidates() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"./third_party/onnxruntime.dll", "onnxruntime.dll"}
	case "darwin":
		return []string{
			"./third_party/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.dylib",
		}
	default:
		if runtime.GOARCH == "arm64" {
			return []string{
				"./third_party/onnxruntime_arm64.so",
				"/usr/local/lib/libonnxruntime.so",
				"/usr/lib/aarch64-linux-gnu/libonnxruntime.so",
			}
		}
		return []string{
			"./third_party/onnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
		}
	}
}

// GetSharedLibPath returns the path to the ONNX Runtime shared library.
//
// Arguments:
//   - configured: The path from configuration, used as is when set.
//
// Returns:
//   - string: The configured path, else $ONNXRUNTIME_LIB, else the first
//     platform default that exists, else the first platform default.
func GetSharedLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv(LibraryEnv); env != "" {
		return env
	}

	candidates := SharedLibCandidates()
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[0]
}
