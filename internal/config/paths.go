// Package config loads reelgate configuration from file, environment and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigDir returns the default configuration directory (~/.reelgate).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".reelgate"), nil
}

func inConfigDir(name string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// DefaultConfigPath returns ~/.reelgate/config.yaml.
func DefaultConfigPath() (string, error) {
	return inConfigDir("config.yaml")
}

// DefaultDataPath returns ~/.reelgate/data.db.
func DefaultDataPath() (string, error) {
	return inConfigDir("data.db")
}

// DefaultAgentsPath returns ~/.reelgate/agents.yaml.
func DefaultAgentsPath() (string, error) {
	return inConfigDir("agents.yaml")
}

// ExpandPath expands a leading ~ to the user home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" {
		return os.UserHomeDir()
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}

	return path, nil
}
