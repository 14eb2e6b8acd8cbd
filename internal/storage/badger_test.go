package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/muxd/internal/core/domain"
	"github.com/yndnr/muxd/internal/storage/memory"
	"github.com/yndnr/muxd/internal/telemetry/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "error", Format: "text", Output: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func inMemoryConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendBadger
	cfg.Badger.InMemory = true
	return cfg
}

func openTestStore(t *testing.T, cfg Config) *BadgerStore {
	t.Helper()
	s, err := OpenBadger(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createSession(t *testing.T, s *BadgerStore) *domain.Session {
	t.Helper()
	ctx := context.Background()
	id, err := s.NextID(ctx)
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	session, err := domain.NewSession(id)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return session
}

func TestBadgerStore_CRUD(t *testing.T) {
	s := openTestStore(t, inMemoryConfig())
	ctx := context.Background()

	created := createSession(t, s)

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != *created {
		t.Fatalf("Get = %+v, want %+v", got, created)
	}

	if err := s.Create(ctx, created); !errors.Is(err, domain.ErrSessionConflict) {
		t.Fatalf("duplicate Create = %v, want ErrSessionConflict", err)
	}

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("Get after Delete = %v, want ErrSessionNotFound", err)
	}
	if err := s.Delete(ctx, created.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("second Delete = %v, want ErrSessionNotFound", err)
	}
}

func TestBadgerStore_IDsIncrease(t *testing.T) {
	s := openTestStore(t, inMemoryConfig())
	ctx := context.Background()

	prev := int64(0)
	for i := 0; i < 200; i++ {
		id, err := s.NextID(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if id <= prev {
			t.Fatalf("NextID = %d after %d", id, prev)
		}
		prev = id
	}
}

func TestBadgerStore_ListOrderedByID(t *testing.T) {
	s := openTestStore(t, inMemoryConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createSession(t, s)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("len(List) = %d, want 5", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Fatalf("List not ordered: %d before %d", list[i-1].ID, list[i].ID)
		}
	}

	n, err := s.Count(ctx)
	if err != nil || n != 5 {
		t.Fatalf("Count = %d, %v; want 5", n, err)
	}
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendBadger
	cfg.Dir = t.TempDir()
	cfg.Badger.GCInterval = 0
	ctx := context.Background()

	first, err := OpenBadger(cfg, testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	id, _ := first.NextID(ctx)
	session, _ := domain.NewSession(id)
	if err := first.Create(ctx, session); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := openTestStore(t, cfg)
	got, err := second.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.ConnName != session.ConnName {
		t.Fatalf("ConnName = %q, want %q", got.ConnName, session.ConnName)
	}

	next, err := second.NextID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next <= id {
		t.Fatalf("id after reopen = %d, want > %d", next, id)
	}
}

func TestBadgerStore_Closed(t *testing.T) {
	s, err := OpenBadger(inMemoryConfig(), testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.NextID(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("NextID after Close = %v, want ErrClosed", err)
	}
}

func TestBadgerStore_RegisterMetrics(t *testing.T) {
	s := openTestStore(t, inMemoryConfig())
	reg := prometheus.NewRegistry()

	if err := s.RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"muxd_badger_lsm_size_bytes", "muxd_badger_value_log_size_bytes"} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}

	if n, err := s.GC(); err != nil || n != 0 {
		t.Fatalf("GC in memory = %d, %v", n, err)
	}
}

func TestBadgerStore_RegisterMetricsWhileGCRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendBadger
	cfg.Dir = t.TempDir()
	cfg.Badger.GCInterval = time.Millisecond
	s := openTestStore(t, cfg)

	time.Sleep(5 * time.Millisecond)
	reg := prometheus.NewRegistry()
	if err := s.RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "muxd_badger_gc_rewrites_total")
	if err != nil || n != 1 {
		t.Fatalf("gc_rewrites_total series = %d, %v; want 1", n, err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory default", func(*Config) {}, false},
		{"badger with dir", func(c *Config) { c.Backend = BackendBadger; c.Dir = "/var/lib/muxd" }, false},
		{"badger in memory", func(c *Config) { c.Backend = BackendBadger; c.Badger.InMemory = true }, false},
		{"badger without dir", func(c *Config) { c.Backend = BackendBadger }, true},
		{"bad threshold", func(c *Config) { c.Backend = BackendBadger; c.Dir = "/x"; c.Badger.GCThreshold = 1 }, true},
		{"unknown backend", func(c *Config) { c.Backend = "redis" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	repo, err := Open(DefaultConfig(), testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("Open(memory) = %T", repo)
	}

	repo, err = Open(inMemoryConfig(), testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	if _, ok := repo.(*BadgerStore); !ok {
		t.Fatalf("Open(badger) = %T", repo)
	}

	if _, err := Open(Config{Backend: "bolt"}, testLogger(t)); err == nil {
		t.Fatal("Open with unknown backend succeeded")
	}
}
