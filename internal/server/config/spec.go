package config

import "time"

// ServerConfig is the root configuration for muxd.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Daemon  DaemonSection  `koanf:"daemon"`
	Storage StorageSection `koanf:"storage"`
	Log     LogSection     `koanf:"log"`
	Metrics MetricsSection `koanf:"metrics"`
}

// ServerSection configures the local socket server.
type ServerSection struct {
	SocketPath string `koanf:"socket_path"`

	// Workers is the number of connections served concurrently.
	// 1 serves strictly one connection at a time.
	Workers int `koanf:"workers"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// MaxRequestsPerConn bounds the requests read from one connection.
	// 1 makes every connection single-use.
	MaxRequestsPerConn int `koanf:"max_requests_per_conn"`

	// MaxFrameSize bounds one incoming frame payload in bytes, up to 1 MiB.
	MaxFrameSize uint32 `koanf:"max_frame_size"`

	// AcceptRate limits accepted connections per second. 0 disables.
	AcceptRate  float64 `koanf:"accept_rate"`
	AcceptBurst int     `koanf:"accept_burst"`

	// UnhandledPolicy is "ignore" or "unsupported".
	UnhandledPolicy string `koanf:"unhandled_policy"`

	// ProbeTimeout bounds the liveness dial made before removing an
	// occupied socket path.
	ProbeTimeout time.Duration `koanf:"probe_timeout"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DaemonSection configures background mode.
type DaemonSection struct {
	PidFile      string        `koanf:"pid_file"`
	ReadyTimeout time.Duration `koanf:"ready_timeout"`
}

// StorageSection configures the session registry.
type StorageSection struct {
	// Backend is "memory" or "badger".
	Backend    string        `koanf:"backend"`
	DataDir    string        `koanf:"data_dir"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File receives daemon output. Empty selects the XDG state location.
	File string `koanf:"file"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Addr is the HTTP listen address. Empty disables the endpoint.
	Addr string `koanf:"addr"`
}
