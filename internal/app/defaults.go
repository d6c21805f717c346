package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - NOTEEASE_CONFIG_PATH: config file location (default: ~/.config/noteease.toml)
//   - NOTEEASE_HOME: base directory for noteease data (default: ~/.local/share/noteease)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// LoadEnvFiles reads KEY=value pairs from each existing file into the process
// environment. Variables that are already set win. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// getConfigPath returns the config file path, checking NOTEEASE_CONFIG_PATH env var first,
// then falling back to the default ~/.config/noteease.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("NOTEEASE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "noteease.toml"), nil
}

// getBaseDir returns the base directory for noteease data, checking NOTEEASE_HOME env var first,
// then falling back to the XDG default ~/.local/share/noteease.
func getBaseDir() (string, error) {
	if path := os.Getenv("NOTEEASE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "noteease"), nil
}
