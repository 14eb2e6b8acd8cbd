package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PidFile records the daemon's pid on disk.
type PidFile struct {
	path string
}

// NewPidFile returns a PidFile at path.
func NewPidFile(path string) *PidFile {
	return &PidFile{path: path}
}

// Path returns the pid file path.
func (p *PidFile) Path() string {
	return p.path
}

// Write stores the current pid, creating the directory if needed.
func (p *PidFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create pid file directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Read returns the recorded pid.
func (p *PidFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", p.path, err)
	}
	return pid, nil
}

// Remove deletes the pid file. A missing file is not an error.
func (p *PidFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}
