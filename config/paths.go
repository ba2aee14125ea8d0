package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	overrideMu        sync.RWMutex
	configDirOverride string
)

// SetConfigDir points ConfigDir at dir for the rest of the process. An empty
// dir restores the default.
func SetConfigDir(dir string) {
	overrideMu.Lock()
	configDirOverride = strings.TrimSpace(dir)
	overrideMu.Unlock()
}

// ConfigDir returns the ferry config directory (~/.ferry).
func ConfigDir() (string, error) {
	overrideMu.RLock()
	dir := configDirOverride
	overrideMu.RUnlock()

	if dir != "" {
		if dir == "~" || strings.HasPrefix(dir, "~/") {
			return expandHome(dir, "")
		}
		if filepath.IsAbs(dir) {
			return filepath.Clean(dir), nil
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", err
		}
		return filepath.Clean(abs), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ferry"), nil
}

// ConfigPath returns the default YAML config path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// expandHome expands a leading ~ and joins relative paths onto base.
func expandHome(path, base string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	if filepath.IsAbs(path) || base == "" {
		return filepath.Clean(path), nil
	}
	return filepath.Join(base, path), nil
}
