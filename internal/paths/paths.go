// Package paths provides centralized path resolution for gocoach.
// This package has NO internal imports (only stdlib) to avoid import cycles.
// All functions return errors to allow callers to log appropriately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigNames lists accepted config file names in lookup order.
var ConfigNames = []string{"gocoach.json", "gocoach.toml"}

// BaseDir returns the gocoach base directory (~/.gocoach).
// GOCOACH_HOME overrides it (used by tests and portable installs).
func BaseDir() (string, error) {
	if dir := os.Getenv("GOCOACH_HOME"); dir != "" {
		return ExpandTilde(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".gocoach"), nil
}

// DataPath returns a path within the gocoach data directory (~/.gocoach/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active config file path.
// Priority: ./gocoach.{json,toml} (current dir) > ~/.gocoach/gocoach.{json,toml}
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	for _, name := range ConfigNames {
		if _, err := os.Stat(name); err == nil {
			absPath, err := filepath.Abs(name)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path: %w", err)
			}
			return absPath, nil
		}
	}

	for _, name := range ConfigNames {
		globalPath, err := DataPath(name)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(globalPath); err == nil {
			return globalPath, nil
		}
	}

	return "", nil
}

// DefaultConfigPath returns the default location for new configs (~/.gocoach/gocoach.json).
func DefaultConfigPath() (string, error) {
	return DataPath(ConfigNames[0])
}

// WhisperModelsDir returns the default whisper.cpp model directory.
func WhisperModelsDir() (string, error) {
	return DataPath(filepath.Join("stt", "whisper"))
}

// LogFilePath returns the log file used while the full-screen TUI is active.
func LogFilePath() (string, error) {
	return DataPath("gocoach.log")
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
