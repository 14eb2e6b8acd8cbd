package localserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// ErrAlreadyRunning is returned when a live server answers on the path.
var ErrAlreadyRunning = errors.New("localserver: a server is already listening on the socket")

// DefaultProbeTimeout bounds the liveness dial when none is configured.
const DefaultProbeTimeout = 200 * time.Millisecond

// AcquireOptions configures Acquire.
type AcquireOptions struct {
	Path         string
	ProbeTimeout time.Duration
	Logger       logger.Logger
}

// Acquire binds a unix listener on opts.Path.
//
// A bind failing because the parent directory is missing creates it (0700)
// and retries once. A bind failing because the path is occupied probes the
// occupant: a live server yields ErrAlreadyRunning, anything refusing the
// dial is removed and the bind retried once. Any other failure is returned.
// The socket file is restricted to its owner.
func Acquire(ctx context.Context, opts AcquireOptions) (*net.UnixListener, error) {
	if opts.Path == "" {
		return nil, errors.New("localserver: socket path is required")
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	addr := &net.UnixAddr{Name: opts.Path, Net: "unix"}

	var dirCreated, staleRemoved bool
	for {
		ln, err := net.ListenUnix("unix", addr)
		if err == nil {
			if err := os.Chmod(opts.Path, 0o600); err != nil {
				ln.Close()
				return nil, fmt.Errorf("restrict socket %s: %w", opts.Path, err)
			}
			return ln, nil
		}

		switch {
		case errors.Is(err, syscall.ENOENT) && !dirCreated:
			dir := filepath.Dir(opts.Path)
			log.Info("creating socket directory", "dir", dir)
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create socket directory %s: %w", dir, err)
			}
			dirCreated = true

		case errors.Is(err, syscall.EADDRINUSE) && !staleRemoved:
			alive, probeErr := Probe(ctx, opts.Path, opts.ProbeTimeout)
			if probeErr != nil {
				return nil, fmt.Errorf("probe existing socket %s: %w", opts.Path, probeErr)
			}
			if alive {
				return nil, ErrAlreadyRunning
			}
			log.Warn("removing stale socket", "path", opts.Path)
			if err := os.Remove(opts.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("remove stale socket %s: %w", opts.Path, err)
			}
			staleRemoved = true

		default:
			return nil, fmt.Errorf("listen unix %s: %w", opts.Path, err)
		}
	}
}

// Probe reports whether something accepts connections on path.
//
// Refused connections, a missing path and a path that is not a socket all
// mean nobody is listening. Other dial failures are returned.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", path)
	if err == nil {
		conn.Close()
		return true, nil
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ENOTSOCK) {
		return false, nil
	}
	return false, err
}
