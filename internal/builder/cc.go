package builder

import (
	"os"
	"os/exec"
)

var (
	commonCxxCompilers = []string{"g++", "clang++", "c++"}
	commonArchivers    = []string{"ar", "llvm-ar"}
)

// lookPath is swapped out by tests
var lookPath = exec.LookPath

func findTool(envVar string, candidates []string) string {
	if tool := os.Getenv(envVar); tool != "" {
		return tool
	}
	for _, candidate := range candidates {
		if path, err := lookPath(candidate); err == nil {
			return path
		}
	}
	// nothing found, let the invocation fail with a readable error
	return candidates[0]
}

// findCompiler attempts to find a suitable C++ compiler driver on the system
func findCompiler() string {
	return findTool("CXX", commonCxxCompilers)
}

// findArchiver attempts to find a static archiver on the system
func findArchiver() string {
	return findTool("AR", commonArchivers)
}
