package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/yndnr/muxd/internal/core/service"
	"github.com/yndnr/muxd/internal/infra/buildinfo"
	"github.com/yndnr/muxd/internal/infra/confloader"
	"github.com/yndnr/muxd/internal/infra/daemon"
	"github.com/yndnr/muxd/internal/infra/shutdown"
	"github.com/yndnr/muxd/internal/server/config"
	"github.com/yndnr/muxd/internal/server/localserver"
	"github.com/yndnr/muxd/internal/storage"
	"github.com/yndnr/muxd/internal/telemetry/logger"
	"github.com/yndnr/muxd/internal/telemetry/metric"
)

type startOptions struct {
	ConfigFile string
	Overrides  map[string]any
	Foreground bool

	// Stdout receives the launcher's "server running" line.
	Stdout io.Writer
	// LogOutput replaces stdout as the log sink in foreground mode.
	LogOutput io.Writer
	// Ready, when set, is closed once the server is accepting.
	Ready chan<- struct{}
}

func start(ctx context.Context, opts startOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	loader := confloader.NewLoader(
		confloader.WithConfigFile(opts.ConfigFile),
		confloader.WithOverrides(opts.Overrides),
	)
	cfg, err := config.LoadWith(loader)
	if err != nil {
		return err
	}

	if !opts.Foreground && !daemon.Inherited() {
		return launch(ctx, cfg, opts)
	}
	return run(ctx, cfg, loader, opts)
}

// launch binds the socket in the calling process and hands it to a
// detached child.
func launch(ctx context.Context, cfg *config.ServerConfig, opts startOptions) error {
	log, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ln, err := acquire(ctx, cfg, log)
	if err != nil {
		return err
	}

	logFile := cfg.Log.File
	if logFile == "" {
		if logFile, err = logger.DefaultFilePath(); err != nil {
			_ = ln.Close()
			return fmt.Errorf("resolve log file: %w", err)
		}
	}

	_, err = daemon.Detach(ln, daemon.Options{
		LogFile:      logFile,
		ReadyTimeout: cfg.Daemon.ReadyTimeout,
		Stdout:       opts.Stdout,
	})
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("daemon did not start (see %s): %w", logFile, err)
	}
	return nil
}

// run serves until a termination signal or ctx ends.
func run(ctx context.Context, cfg *config.ServerConfig, loader *confloader.Loader, opts startOptions) error {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	if cfg.Log.File != "" && !daemon.Inherited() && opts.LogOutput == nil {
		f, err := logger.OpenFile(cfg.Log.File)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = f
	}

	log, err := newLogger(cfg, out)
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting muxd",
		append([]any{"version", info.Version, "commit", info.Commit, "pid", os.Getpid()}, config.Summary(cfg)...)...)

	var ln net.Listener
	if daemon.Inherited() {
		ln, err = daemon.InheritedListener()
	} else {
		ln, err = acquire(ctx, cfg, log)
	}
	if err != nil {
		return err
	}

	metrics := metric.NewRegistry()
	handler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log)

	// Hooks run in reverse order: watcher, metrics, server, storage, files.
	socketPath := cfg.Server.SocketPath
	handler.OnShutdownFunc("socket", func() {
		if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove socket", "path", socketPath, "error", err)
		}
	})

	if cfg.Daemon.PidFile != "" {
		pid := daemon.NewPidFile(cfg.Daemon.PidFile)
		if err := pid.Write(); err != nil {
			_ = ln.Close()
			return err
		}
		handler.OnShutdown("pidfile", func(context.Context) error { return pid.Remove() })
	}

	repo, err := storage.Open(storageConfig(cfg), log)
	if err != nil {
		_ = ln.Close()
		_ = handler.Shutdown()
		return fmt.Errorf("open storage: %w", err)
	}
	handler.OnShutdown("storage", func(context.Context) error { return repo.Close() })

	if bs, ok := repo.(*storage.BadgerStore); ok {
		if err := bs.RegisterMetrics(metrics.Registerer()); err != nil {
			log.Warn("register storage metrics", "error", err)
		}
	}

	sessions := service.NewSessionService(repo)
	if n, err := sessions.CountSessions(ctx); err == nil {
		metrics.SetSessionsActive(n)
		if n > 0 {
			log.Info("restored sessions", "count", n)
		}
	}

	policy, err := localserver.ParsePolicy(cfg.Server.UnhandledPolicy)
	if err != nil {
		_ = ln.Close()
		_ = handler.Shutdown()
		return err
	}
	dispatcher := localserver.NewDispatcher(sessions,
		localserver.WithPolicy(policy),
		localserver.WithSessionMetrics(metrics),
	)
	srv := localserver.New(ln, dispatcher, serverConfig(cfg),
		localserver.WithLogger(log),
		localserver.WithMetrics(metrics),
	)
	handler.OnShutdown("server", srv.Shutdown)

	if cfg.Metrics.Addr != "" {
		ms := metric.NewServer(cfg.Metrics.Addr, metrics, log)
		if err := ms.Start(); err != nil {
			_ = ln.Close()
			_ = handler.Shutdown()
			return fmt.Errorf("start metrics server: %w", err)
		}
		log.Info("metrics listening", "addr", ms.Addr().String())
		handler.OnShutdown("metrics", ms.Shutdown)
	}

	if path := loader.FilePath(); path != "" {
		stop, err := watchConfig(path, loader, log)
		if err != nil {
			log.Warn("config watch disabled", "path", path, "error", err)
		} else {
			handler.OnShutdown("watcher", func(context.Context) error { return stop() })
		}
	}

	serveCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		if err := srv.Serve(serveCtx); err != nil {
			log.Error("server stopped", "error", err)
			cancel(err)
		}
	}()

	if err := daemon.NotifyReady(); err != nil {
		log.Warn("readiness notification failed", "error", err)
	}
	if opts.Ready != nil {
		close(opts.Ready)
	}
	log.Info("server running", "socket", socketPath, "pid", os.Getpid())

	if err := handler.WaitContext(serveCtx); err != nil {
		log.Error("shutdown finished with errors", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg *config.ServerConfig, out io.Writer) (logger.Logger, error) {
	lc := logger.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.Format = cfg.Log.Format
	lc.Output = out
	return logger.New(lc)
}

func acquire(ctx context.Context, cfg *config.ServerConfig, log logger.Logger) (*net.UnixListener, error) {
	ln, err := localserver.Acquire(ctx, localserver.AcquireOptions{
		Path:         cfg.Server.SocketPath,
		ProbeTimeout: cfg.Server.ProbeTimeout,
		Logger:       log,
	})
	if errors.Is(err, localserver.ErrAlreadyRunning) {
		return nil, fmt.Errorf("%w: %s", err, cfg.Server.SocketPath)
	}
	return ln, err
}

// watchConfig re-reads the config file on change and applies log.level.
// Other settings take effect on restart.
func watchConfig(path string, loader *confloader.Loader, log logger.Logger) (func() error, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		cfg, err := config.LoadWith(loader)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("apply log level", "error", err)
			return
		}
		log.Info("config reloaded", "log_level", cfg.Log.Level)
	})
	w.StartAsync()
	return w.Stop, nil
}

func storageConfig(cfg *config.ServerConfig) storage.Config {
	sc := storage.DefaultConfig()
	sc.Backend = cfg.Storage.Backend
	sc.Dir = cfg.Storage.DataDir
	sc.Badger.GCInterval = cfg.Storage.GCInterval
	return sc
}

func serverConfig(cfg *config.ServerConfig) localserver.Config {
	return localserver.Config{
		Workers:            cfg.Server.Workers,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		MaxRequestsPerConn: cfg.Server.MaxRequestsPerConn,
		MaxFrameSize:       cfg.Server.MaxFrameSize,
		AcceptRate:         cfg.Server.AcceptRate,
		AcceptBurst:        cfg.Server.AcceptBurst,
	}
}
