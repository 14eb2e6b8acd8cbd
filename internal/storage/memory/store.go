package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/yndnr/muxd/internal/core/domain"
	"github.com/yndnr/muxd/pkg/cmap"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory: store closed")

// Store is an in-memory session registry.
type Store struct {
	sessions *cmap.Map[int64, *domain.Session]
	lastID   atomic.Int64
	closed   atomic.Bool
}

// Option configures the Store.
type Option func(*Store)

// WithStartID makes the first issued id start+1.
func WithStartID(start int64) Option {
	return func(s *Store) {
		s.lastID.Store(start)
	}
}

// WithShards sets the shard count of the underlying map (power of two).
func WithShards(n int) Option {
	return func(s *Store) {
		s.sessions = cmap.NewWithShards[int64, *domain.Session](n)
	}
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions: cmap.New[int64, *domain.Session](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextID issues the next identifier.
func (s *Store) NextID(_ context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return s.lastID.Add(1), nil
}

// Create stores a new session.
func (s *Store) Create(_ context.Context, session *domain.Session) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if session == nil {
		return domain.ErrSessionValidation.WithDetails("session is nil")
	}
	if _, exists := s.sessions.GetOrSet(session.ID, session.Clone()); exists {
		return domain.ErrSessionConflict.WithDetails(fmt.Sprintf("id %d", session.ID))
	}
	return nil
}

// Get retrieves a session by id.
func (s *Store) Get(_ context.Context, id int64) (*domain.Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound.WithDetails(fmt.Sprintf("id %d", id))
	}
	// Return a clone to prevent external modification
	return session.Clone(), nil
}

// Delete removes a session by id.
func (s *Store) Delete(_ context.Context, id int64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, ok := s.sessions.Pop(id); !ok {
		return domain.ErrSessionNotFound.WithDetails(fmt.Sprintf("id %d", id))
	}
	return nil
}

// List returns a snapshot of every session.
func (s *Store) List(_ context.Context) ([]*domain.Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	out := make([]*domain.Session, 0, s.sessions.Count())
	s.sessions.Range(func(_ int64, v *domain.Session) bool {
		out = append(out, v.Clone())
		return true
	})
	return out, nil
}

// Count returns the number of sessions.
func (s *Store) Count(_ context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return s.sessions.Count(), nil
}

// Close drops every session. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.sessions.Clear()
	return nil
}
