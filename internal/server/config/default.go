package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/muxd/internal/protocol"
	"github.com/yndnr/muxd/internal/server/localserver"
	"github.com/yndnr/muxd/internal/storage"
)

// Default configuration values.
const (
	DefaultWorkers            = 4
	DefaultReadTimeout        = 5 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultMaxRequestsPerConn = 1
	DefaultAcceptBurst        = 16
	DefaultProbeTimeout       = 200 * time.Millisecond
	DefaultShutdownTimeout    = 10 * time.Second

	DefaultReadyTimeout = 5 * time.Second

	DefaultStorageBackend = storage.BackendMemory
	DefaultGCInterval     = 10 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultSocketPath returns $XDG_RUNTIME_DIR/muxd/muxd.sock, or
// <tmp>/muxd-<uid>/muxd.sock when the runtime dir is unset.
func DefaultSocketPath() string {
	return filepath.Join(runtimeDir(), "muxd.sock")
}

// DefaultPidFile returns the pid file path next to the default socket.
func DefaultPidFile() string {
	return filepath.Join(runtimeDir(), "muxd.pid")
}

func runtimeDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); xdg != "" {
		return filepath.Join(xdg, "muxd")
	}
	return filepath.Join(os.TempDir(), "muxd-"+strconv.Itoa(os.Getuid()))
}

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			SocketPath:         DefaultSocketPath(),
			Workers:            DefaultWorkers,
			ReadTimeout:        DefaultReadTimeout,
			WriteTimeout:       DefaultWriteTimeout,
			MaxRequestsPerConn: DefaultMaxRequestsPerConn,
			AcceptBurst:        DefaultAcceptBurst,
			MaxFrameSize:       protocol.MaxFrameSize,
			UnhandledPolicy:    string(localserver.PolicyIgnore),
			ProbeTimeout:       DefaultProbeTimeout,
			ShutdownTimeout:    DefaultShutdownTimeout,
		},
		Daemon: DaemonSection{
			PidFile:      DefaultPidFile(),
			ReadyTimeout: DefaultReadyTimeout,
		},
		Storage: StorageSection{
			Backend:    DefaultStorageBackend,
			GCInterval: DefaultGCInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
