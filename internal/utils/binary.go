// Package utils holds small, dependency-free helpers shared by the CLI's
// wiring code — currently just binary-path resolution for the executor tool
// binary the core shells out to (the planner calls the completion API
// directly and has no binary).
package utils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveBinaryPath finds a binary, checking common locations beyond PATH.
func ResolveBinaryPath(binaryPath string) string {
	if filepath.IsAbs(binaryPath) {
		return binaryPath
	}

	if path, err := exec.LookPath(binaryPath); err == nil {
		return path
	}

	if strings.HasPrefix(binaryPath, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, binaryPath[1:])
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		commonPaths := []string{
			filepath.Join(home, ".local", "bin", binaryPath),
			filepath.Join("/usr/local/bin", binaryPath),
			filepath.Join("/opt/homebrew/bin", binaryPath),
		}
		for _, p := range commonPaths {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}

	return binaryPath
}

// BinaryNotFoundError returns a helpful error message when an external tool
// binary is not found in PATH or any of the common install locations.
func BinaryNotFoundError(name string) error {
	return fmt.Errorf(`%s not found in PATH

Install %s, or set its full path in .loom/config.yaml.`, name, name)
}
