package utils

import (
	"os"
	"path/filepath"
)

// GetProjectRoot returns the absolute path to the project root directory.
func GetProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "." // fallback
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached root
		}
		dir = parent
	}
	return "." // fallback
}

// GetCertDir returns the default certificate directory under the project root.
func GetCertDir() string {
	return filepath.Join(GetProjectRoot(), "certs")
}

// GetConfigPath returns the default config.json location under the project root.
func GetConfigPath() string {
	return filepath.Join(GetProjectRoot(), "config.json")
}
