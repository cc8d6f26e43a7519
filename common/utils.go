// Package common provides shared constants, types, and utilities
// used across the travel router tools.
package common

import (
	"os"
	"path/filepath"
)

// IsRoot reports whether the process runs with root privileges.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// GetConfigDir returns the path to the per-user configuration directory.
// It creates the directory if it doesn't exist.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", WrapError(err, "failed to get home directory")
	}

	configDir := filepath.Join(homeDir, ".config", ConfigDirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", WrapError(err, "failed to create config directory")
	}

	return configDir, nil
}

// DefaultConfigPath returns the system config path when running as root,
// and the per-user path otherwise.
func DefaultConfigPath() string {
	if IsRoot() {
		return SystemConfigPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return SystemConfigPath
	}
	return filepath.Join(homeDir, ".config", ConfigDirName, ConfigFileName)
}

// GetLogDir returns the log directory path.
func GetLogDir() string {
	if IsRoot() {
		return SystemLogDir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".local", "state", ConfigDirName)
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// StringInSlice checks if a string is in a slice.
func StringInSlice(s string, slice []string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}
