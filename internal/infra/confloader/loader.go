package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix marks the environment variables the loader reads.
const DefaultEnvPrefix = "MUXD_"

// Loader merges a YAML file, MUXD_* environment variables and explicit
// overrides, in that order, over whatever defaults the target holds.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile names the YAML file. Empty means no file layer.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides sets dotted keys that win over every other layer.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{k: koanf.New("."), envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) FilePath() string { return l.filePath }

type layer struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

func (l *Loader) layers() []layer {
	var ls []layer
	if l.filePath != "" {
		ls = append(ls, layer{"config file " + l.filePath, file.Provider(l.filePath), yaml.Parser()})
	}
	prefix := l.envPrefix
	ls = append(ls, layer{"env", env.Provider(prefix, ".", func(s string) string {
		return EnvKey(prefix, s)
	}), nil})
	if len(l.overrides) > 0 {
		ls = append(ls, layer{"overrides", mapProvider(l.overrides), nil})
	}
	return ls
}

// Load rebuilds the merged view from scratch and unmarshals it into
// target. Keys absent from every layer keep target's current values.
func (l *Loader) Load(target any) error {
	k := koanf.New(".")
	for _, ly := range l.layers() {
		if err := k.Load(ly.provider, ly.parser); err != nil {
			return fmt.Errorf("load %s: %w", ly.name, err)
		}
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	l.k = k
	return nil
}

// EnvKey turns an environment variable name into a dotted key. Only the
// first underscore after the prefix splits, so
// MUXD_SERVER_MAX_REQUESTS_PER_CONN is server.max_requests_per_conn.
func EnvKey(prefix, name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, prefix))
	if section, key, ok := strings.Cut(name, "_"); ok {
		return section + "." + key
	}
	return name
}

// Get returns key as merged by the last successful Load.
func (l *Loader) Get(key string) any { return l.k.Get(key) }

// Keys lists the keys set by the last successful Load.
func (l *Loader) Keys() []string { return l.k.Keys() }
