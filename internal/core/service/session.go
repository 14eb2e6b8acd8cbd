package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/yndnr/muxd/internal/core/domain"
)

// SessionRepository is the process-wide session registry.
type SessionRepository interface {
	// NextID issues a new identifier. Identifiers strictly increase and
	// are never reused.
	NextID(ctx context.Context) (int64, error)

	// Create stores a new session. Returns ErrSessionConflict if the id exists.
	Create(ctx context.Context, session *domain.Session) error

	// Get retrieves a session by id. Returns ErrSessionNotFound if absent.
	Get(ctx context.Context, id int64) (*domain.Session, error)

	// Delete removes a session by id. Returns ErrSessionNotFound if absent.
	Delete(ctx context.Context, id int64) error

	// List returns every stored session in no particular order.
	List(ctx context.Context) ([]*domain.Session, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)

	// Close releases the registry.
	Close() error
}

// SessionService creates, looks up and destroys sessions.
type SessionService struct {
	repo SessionRepository
}

// NewSessionService creates a new SessionService.
func NewSessionService(repo SessionRepository) *SessionService {
	return &SessionService{repo: repo}
}

// CreateSession issues an id, builds the session and registers it.
func (s *SessionService) CreateSession(ctx context.Context) (*domain.Session, error) {
	id, err := s.repo.NextID(ctx)
	if err != nil {
		return nil, storageErr("issue session id", err)
	}

	session, err := domain.NewSession(id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, storageErr("register session", err)
	}
	return session.Clone(), nil
}

// GetSession looks a session up by id.
func (s *SessionService) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	if id <= 0 {
		return nil, domain.ErrSessionNotFound.WithDetails(fmt.Sprintf("id %d", id))
	}
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageErr("get session", err)
	}
	return session, nil
}

// ListSessions returns every live session ordered by id.
func (s *SessionService) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// DestroySession removes a session and returns it as it was.
func (s *SessionService) DestroySession(ctx context.Context, id int64) (*domain.Session, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, storageErr("delete session", err)
	}
	return session, nil
}

// CountSessions returns the number of live sessions.
func (s *SessionService) CountSessions(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, storageErr("count sessions", err)
	}
	return n, nil
}

// storageErr keeps domain errors as they are and wraps anything else.
func storageErr(op string, err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return domain.ErrStorageError.WithDetails(op).WithCause(err)
}
