package logger

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultFilePath returns the daemon log location:
// $XDG_STATE_HOME/muxd/muxd.log, or ~/.local/state/muxd/muxd.log.
func DefaultFilePath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "muxd", "muxd.log"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "muxd", "muxd.log"), nil
}

// OpenFile opens path for appending, creating it and its directory with
// owner-only permissions.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}
