package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is what components log through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Config selects level, encoding and sink.
type Config struct {
	Level     string    // debug, info, warn or error
	Format    string    // json or text
	Output    io.Writer // nil means stderr
	AddSource bool
}

// DefaultConfig is info-level JSON on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

var levelNames = []struct {
	name  string
	level slog.Level
}{
	{"debug", slog.LevelDebug},
	{"info", slog.LevelInfo},
	{"warn", slog.LevelWarn},
	{"error", slog.LevelError},
}

// ParseLevel maps a level name to a slog.Level. "" means info and
// "warning" is accepted as warn.
func ParseLevel(name string) (slog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		name = "warn"
	}
	for _, ln := range levelNames {
		if ln.name == name {
			return ln.level, nil
		}
	}
	return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", name)
}

// level is shared by every handler New builds, so SetLevel affects
// loggers that already exist.
var level slog.LevelVar

// SetLevel changes the process-wide level. An unknown name leaves it as is.
func SetLevel(name string) error {
	l, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// GetLevel returns the name of the process-wide level.
func GetLevel() string {
	cur := level.Level()
	for _, ln := range levelNames {
		if ln.level == cur {
			return ln.name
		}
	}
	return cur.String()
}

// New builds a logger from cfg and sets the process-wide level to cfg.Level.
func New(cfg Config) (Logger, error) {
	lv, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	h, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	level.Set(lv)
	return wrap(slog.New(h)), nil
}

func newHandler(cfg Config) (slog.Handler, error) {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: &level, AddSource: cfg.AddSource}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text", "console":
		return slog.NewTextHandler(w, opts), nil
	}
	return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
}

type logger struct {
	sl  *slog.Logger
	ctx context.Context
}

func wrap(sl *slog.Logger) *logger {
	return &logger{sl: sl, ctx: context.Background()}
}

func (l *logger) log(lv slog.Level, msg string, args []any) {
	l.sl.Log(l.ctx, lv, msg, args...)
}

func (l *logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *logger) With(args ...any) Logger {
	return &logger{sl: l.sl.With(args...), ctx: l.ctx}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	return &logger{sl: l.sl, ctx: ctx}
}

// discard drops every record regardless of level.
type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discard) WithGroup(string) slog.Handler           { return d }

// Nop returns a logger that writes nothing.
func Nop() Logger {
	return wrap(slog.New(discard{}))
}

var std atomic.Pointer[logger]

func init() {
	std.Store(wrap(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))))
}

// SetDefault replaces the logger returned by Default. Loggers not built
// by this package are ignored.
func SetDefault(l Logger) {
	if v, ok := l.(*logger); ok {
		std.Store(v)
	}
}

// Default returns the process logger.
func Default() Logger {
	return std.Load()
}
