package config

// Summary returns the settings worth logging at startup as key/value pairs.
func Summary(cfg *ServerConfig) []any {
	return []any{
		"socket", cfg.Server.SocketPath,
		"workers", cfg.Server.Workers,
		"max_requests_per_conn", cfg.Server.MaxRequestsPerConn,
		"max_frame_size", cfg.Server.MaxFrameSize,
		"unhandled_policy", cfg.Server.UnhandledPolicy,
		"accept_rate", cfg.Server.AcceptRate,
		"storage", cfg.Storage.Backend,
		"metrics", cfg.Metrics.Addr,
	}
}
