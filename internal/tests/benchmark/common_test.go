package benchmark

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"testing"

	"github.com/yndnr/muxd/internal/core/service"
	"github.com/yndnr/muxd/internal/storage"
	"github.com/yndnr/muxd/internal/storage/memory"
	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// SessionCounts are the registry sizes used for scaling benchmarks.
var SessionCounts = []int{1000, 10000, 50000}

// backend opens a fresh registry of the named kind.
type backend struct {
	name string
	open func(b *testing.B) service.SessionRepository
}

func backends() []backend {
	return []backend{
		{"memory", func(*testing.B) service.SessionRepository { return memory.New() }},
		{"badger", func(b *testing.B) service.SessionRepository {
			cfg := storage.DefaultConfig()
			cfg.Backend = storage.BackendBadger
			cfg.Badger.InMemory = true
			cfg.Badger.GCInterval = 0
			cfg.Badger.SyncWrites = false
			repo, err := storage.Open(cfg, quietLogger())
			if err != nil {
				b.Fatalf("open badger: %v", err)
			}
			return repo
		}},
	}
}

func quietLogger() logger.Logger {
	l, _ := logger.New(logger.Config{Level: "error", Format: "text", Output: io.Discard})
	return l
}

// prefill creates count sessions through svc.
func prefill(b *testing.B, svc *service.SessionService, count int) {
	b.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		if _, err := svc.CreateSession(ctx); err != nil {
			b.Fatalf("prefill: %v", err)
		}
	}
}

// reportMemory reports heap usage after a forced GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
}

// runWithSessionCounts runs benchFn once per registry size.
func runWithSessionCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("sessions_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
