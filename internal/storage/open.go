package storage

import (
	"github.com/yndnr/muxd/internal/core/service"
	"github.com/yndnr/muxd/internal/storage/memory"
	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// Open validates cfg and opens the configured registry backend.
func Open(cfg Config, log logger.Logger) (service.SessionRepository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == BackendBadger {
		return OpenBadger(cfg, log)
	}
	return memory.New(), nil
}
