package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UserWritableFilePerms represents the standard permissions for newly
// created files (rw-r--r--).
const UserWritableFilePerms os.FileMode = 0644

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	// Replace the tilde with the home directory.
	return filepath.Join(home, path[1:]), nil
}

// CanonicalPath converts a raw path into a cleaned absolute path with
// symbolic links resolved and any trailing separator stripped. If the path
// does not exist, the cleaned absolute spelling is returned instead so that
// rules for not-yet-existing paths still normalize consistently.
func CanonicalPath(raw string) (string, error) {
	expanded, err := ExpandPath(raw)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("could not determine absolute path for %s: %w", raw, err)
	}
	abs = filepath.Clean(abs)

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", fmt.Errorf("could not resolve symlinks for %s: %w", abs, err)
	}
	return resolved, nil
}
