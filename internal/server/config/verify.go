package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/yndnr/muxd/internal/protocol"
	"github.com/yndnr/muxd/internal/server/localserver"
	"github.com/yndnr/muxd/internal/storage"
	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyDaemon(&cfg.Daemon),
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
		verifyMetrics(&cfg.Metrics),
	)
}

func verifyServer(s *ServerSection) error {
	var errs []error
	if s.SocketPath == "" {
		errs = append(errs, errors.New("server.socket_path is required"))
	} else if !filepath.IsAbs(s.SocketPath) {
		errs = append(errs, fmt.Errorf("server.socket_path must be absolute, got %q", s.SocketPath))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be at least 1, got %d", s.Workers))
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		errs = append(errs, errors.New("server.read_timeout and server.write_timeout must not be negative"))
	}
	if s.MaxRequestsPerConn < 1 {
		errs = append(errs, fmt.Errorf("server.max_requests_per_conn must be at least 1, got %d", s.MaxRequestsPerConn))
	}
	if s.AcceptRate < 0 {
		errs = append(errs, fmt.Errorf("server.accept_rate must not be negative, got %v", s.AcceptRate))
	}
	if s.AcceptRate > 0 && s.AcceptBurst < 1 {
		errs = append(errs, errors.New("server.accept_burst must be at least 1 when accept_rate is set"))
	}
	if s.MaxFrameSize < 1 || s.MaxFrameSize > protocol.MaxFrameSize {
		errs = append(errs, fmt.Errorf("server.max_frame_size must be in [1, %d], got %d",
			protocol.MaxFrameSize, s.MaxFrameSize))
	}
	if _, err := localserver.ParsePolicy(s.UnhandledPolicy); err != nil {
		errs = append(errs, fmt.Errorf("server.unhandled_policy: %w", err))
	}
	if s.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("server.probe_timeout must be positive"))
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func verifyDaemon(d *DaemonSection) error {
	if d.PidFile != "" && !filepath.IsAbs(d.PidFile) {
		return fmt.Errorf("daemon.pid_file must be absolute, got %q", d.PidFile)
	}
	if d.ReadyTimeout <= 0 {
		return errors.New("daemon.ready_timeout must be positive")
	}
	return nil
}

func verifyStorage(s *StorageSection) error {
	switch s.Backend {
	case storage.BackendMemory:
		return nil
	case storage.BackendBadger:
		if s.DataDir == "" {
			return errors.New("storage.data_dir is required for the badger backend")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", storage.BackendMemory, storage.BackendBadger, s.Backend)
	}
}

func verifyLog(l *LogSection) error {
	var errs []error
	if _, err := logger.ParseLevel(l.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch l.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", l.Format))
	}
	return errors.Join(errs...)
}

func verifyMetrics(m *MetricsSection) error {
	if m.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Addr); err != nil {
		return fmt.Errorf("metrics.addr: %w", err)
	}
	return nil
}
