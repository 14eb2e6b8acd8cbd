package storage

import (
	"fmt"
	"time"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config configures the session registry.
type Config struct {
	// Backend is "memory" or "badger".
	Backend string

	// Dir is the Badger data directory. Required for the badger backend
	// unless Badger.InMemory is set.
	Dir string

	Badger BadgerConfig
}

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// InMemory keeps all data in RAM. Used by tests.
	InMemory bool

	// GCInterval is the interval between value log GC runs.
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// SequenceBandwidth is the number of ids leased from disk at a time.
	SequenceBandwidth uint64
}

// DefaultConfig returns the memory backend configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		Badger:  DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:        10 * time.Minute,
		GCThreshold:       0.5,
		CacheSize:         16 << 20,
		SyncWrites:        true,
		SequenceBandwidth: 64,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendBadger:
		if c.Dir == "" && !c.Badger.InMemory {
			return fmt.Errorf("storage: data dir is required for the badger backend")
		}
		if c.Badger.GCThreshold <= 0 || c.Badger.GCThreshold >= 1 {
			return fmt.Errorf("storage: gc threshold must be in (0, 1), got %v", c.Badger.GCThreshold)
		}
		if c.Badger.SequenceBandwidth == 0 {
			return fmt.Errorf("storage: sequence bandwidth must be positive")
		}
		return nil
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Backend)
	}
}
