// Package logger provides structured logging for muxd.
//
// It wraps log/slog behind a small Logger interface so components take a
// logger as a collaborator instead of reaching for a global. Output is JSON
// by default, text on request. The level is process-wide and can be changed
// at runtime with SetLevel, which the config watcher uses on reload.
//
// Context helpers carry the logger and the per-connection id through a
// request: WithConnID tags a context and L returns a logger that includes
// the conn_id attribute.
package logger
