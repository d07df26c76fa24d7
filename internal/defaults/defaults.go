// Package defaults locates the per-user data directory and seeds it with an
// example config on first run.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/FocusRelay/
//	Windows: %AppData%\FocusRelay\
//	Linux:   ~/.config/focusrelay/
//
// Override with FOCUSRELAY_DATA_DIR environment variable.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

//go:embed dotfocusrelay/*
var defaultFiles embed.FS

const embedRoot = "dotfocusrelay"

// ConfigFile is the user config overlaid on the embedded defaults.
const ConfigFile = "config.yaml"

// DataDir returns the platform-appropriate data directory.
// Set FOCUSRELAY_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("FOCUSRELAY_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	// macOS/Windows: title case per platform convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "focusrelay"), nil
	}
	return filepath.Join(configDir, "FocusRelay"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist
// and copies default files if they're missing.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := copyDefaults(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// UserConfigPath returns the user config path if the file exists.
func UserConfigPath() (string, bool) {
	dir, err := DataDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err != nil {
		return path, false
	}
	return path, true
}

// ChromeProfileDir is the profile directory of a launched browser.
func ChromeProfileDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chrome-profile"), nil
}

// copyDefaults copies embedded default files that are missing from dir.
func copyDefaults(dir string) error {
	return fs.WalkDir(defaultFiles, embedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// embed.FS always uses forward slashes
		rel := strings.TrimPrefix(path, embedRoot+"/")
		if d.IsDir() || rel == path {
			return nil
		}

		dest := filepath.Join(dir, filepath.FromSlash(rel))
		if _, err := os.Stat(dest); err == nil {
			return nil
		}

		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dest, data, 0o644)
	})
}

// GetDefault returns the embedded content of a default file.
func GetDefault(name string) ([]byte, error) {
	return defaultFiles.ReadFile(embedRoot + "/" + name)
}
