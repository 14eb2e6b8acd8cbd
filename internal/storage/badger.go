package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/muxd/internal/core/domain"
	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// ErrClosed is returned by BadgerStore operations after Close.
var ErrClosed = errors.New("storage: registry closed")

var (
	sessionPrefix = []byte("session/")
	sequenceKey   = []byte("seq/session")
)

// BadgerStore is a session registry persisted in Badger.
//
// Session ids come from a Badger sequence, so they stay unique across
// restarts. They are not contiguous: unused leased ids are dropped on exit.
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	cfg    BadgerConfig
	logger logger.Logger

	closed    atomic.Bool
	closeOnce sync.Once

	// gcRuns is set before gcLoop starts and only registered later.
	gcRuns prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadger opens (or creates) a Badger registry.
func OpenBadger(cfg Config, log logger.Logger) (*BadgerStore, error) {
	if log == nil {
		log = logger.Default()
	}
	bc := cfg.Badger

	opts := badger.DefaultOptions(cfg.Dir)
	if bc.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: log.With("component", "badger")}
	opts.SyncWrites = bc.SyncWrites
	if bc.CacheSize > 0 {
		opts.BlockCacheSize = bc.CacheSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	bandwidth := bc.SequenceBandwidth
	if bandwidth == 0 {
		bandwidth = 1
	}
	seq, err := db.GetSequence(sequenceKey, bandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badger: open sequence: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		seq:    seq,
		cfg:    bc,
		logger: log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		gcRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "muxd",
			Subsystem: "badger",
			Name:      "gc_rewrites_total",
			Help:      "Value log files rewritten by garbage collection.",
		}),
	}

	if bc.InMemory || bc.GCInterval <= 0 {
		close(s.doneCh)
	} else {
		go s.gcLoop()
	}

	log.Info("badger registry opened",
		"dir", cfg.Dir,
		"in_memory", bc.InMemory,
		"gc_interval", bc.GCInterval)

	return s, nil
}

func sessionKey(id int64) []byte {
	key := make([]byte, len(sessionPrefix)+8)
	copy(key, sessionPrefix)
	binary.BigEndian.PutUint64(key[len(sessionPrefix):], uint64(id))
	return key
}

func decodeSession(item *badger.Item) (*domain.Session, error) {
	var s domain.Session
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &s)
	})
	if err != nil {
		return nil, fmt.Errorf("decode session %q: %w", item.Key(), err)
	}
	return &s, nil
}

// NextID leases the next session id from the sequence.
func (s *BadgerStore) NextID(_ context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("badger: next id: %w", err)
	}
	// Sequences start at zero; session ids are positive.
	return int64(n) + 1, nil
}

// Create stores a new session.
func (s *BadgerStore) Create(_ context.Context, session *domain.Session) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if session == nil {
		return domain.ErrSessionValidation.WithDetails("session is nil")
	}
	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	key := sessionKey(session.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return domain.ErrSessionConflict.WithDetails(fmt.Sprintf("session %d already exists", session.ID))
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, val)
	})
}

// Get returns the session with the given id.
func (s *BadgerStore) Get(_ context.Context, id int64) (*domain.Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var session *domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		session, err = decodeSession(item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes the session with the given id.
func (s *BadgerStore) Delete(_ context.Context, id int64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	key := sessionKey(id)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrSessionNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// List returns every stored session ordered by id.
func (s *BadgerStore) List(_ context.Context) ([]*domain.Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var sessions []*domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			session, err := decodeSession(it.Item())
			if err != nil {
				return err
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Count returns the number of stored sessions.
func (s *BadgerStore) Count(_ context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// GC runs value log garbage collection until nothing more is rewritten.
// It returns the number of rewrites performed.
func (s *BadgerStore) GC() (int, error) {
	if s.cfg.InMemory {
		return 0, nil
	}
	runs := 0
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) {
			return runs, nil
		}
		if err != nil {
			return runs, fmt.Errorf("badger: gc: %w", err)
		}
		runs++
		s.gcRuns.Inc()
	}
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			runs, err := s.GC()
			if err != nil {
				s.logger.Error("value log gc failed", "error", err)
				continue
			}
			if runs > 0 {
				s.logger.Info("value log gc completed", "rewrites", runs, "elapsed", time.Since(start))
			}
		case <-s.stopCh:
			return
		}
	}
}

// RegisterMetrics exposes registry size gauges and a GC counter.
func (s *BadgerStore) RegisterMetrics(reg prometheus.Registerer) error {
	lsm := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "muxd",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes.",
	}, func() float64 {
		l, _ := s.db.Size()
		return float64(l)
	})
	vlog := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "muxd",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes.",
	}, func() float64 {
		_, v := s.db.Size()
		return float64(v)
	})

	for _, c := range []prometheus.Collector{s.gcRuns, lsm, vlog} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("badger: register metrics: %w", err)
		}
	}
	return nil
}

// Close stops background GC, releases unused sequence ids and closes the
// database. It is safe to call more than once.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
		<-s.doneCh

		if rerr := s.seq.Release(); rerr != nil {
			s.logger.Warn("release id sequence", "error", rerr)
		}
		if cerr := s.db.Close(); cerr != nil {
			err = fmt.Errorf("badger: close db: %w", cerr)
			return
		}
		s.logger.Info("badger registry closed")
	})
	return err
}

// badgerLogger adapts logger.Logger to badger.Logger.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
