package localserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/yndnr/muxd/internal/core/domain"
	"github.com/yndnr/muxd/internal/protocol"
	"github.com/yndnr/muxd/internal/telemetry/logger"
	"github.com/yndnr/muxd/internal/telemetry/metric"
)

// Handler turns one request into at most one response. ok is false when
// nothing must be written back.
type Handler interface {
	Dispatch(ctx context.Context, req protocol.Request) (resp protocol.Response, ok bool)
}

// UnhandledPolicy decides what happens to requests without a handler.
type UnhandledPolicy string

const (
	// PolicyIgnore drops the request without a response.
	PolicyIgnore UnhandledPolicy = "ignore"
	// PolicyUnsupported answers with protocol.Unsupported.
	PolicyUnsupported UnhandledPolicy = "unsupported"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (UnhandledPolicy, error) {
	switch p := UnhandledPolicy(s); p {
	case PolicyIgnore, PolicyUnsupported:
		return p, nil
	case "":
		return PolicyIgnore, nil
	default:
		return "", fmt.Errorf("localserver: unknown unhandled policy %q", s)
	}
}

// SessionService is the session API the dispatcher needs.
type SessionService interface {
	CreateSession(ctx context.Context) (*domain.Session, error)
	ListSessions(ctx context.Context) ([]*domain.Session, error)
	DestroySession(ctx context.Context, id int64) (*domain.Session, error)
}

// Dispatcher routes decoded requests to the session service.
type Dispatcher struct {
	sessions SessionService
	policy   UnhandledPolicy
	metrics  *metric.Registry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPolicy sets the unhandled request policy.
func WithPolicy(p UnhandledPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.policy = p
	}
}

// WithSessionMetrics records created and destroyed sessions.
func WithSessionMetrics(m *metric.Registry) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher. The default policy is PolicyIgnore.
func NewDispatcher(sessions SessionService, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sessions: sessions,
		policy:   PolicyIgnore,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch implements Handler.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) (protocol.Response, bool) {
	log := logger.L(ctx)

	switch r := req.(type) {
	case protocol.CreateSession:
		s, err := d.sessions.CreateSession(ctx)
		if err != nil {
			return failed(log, "create session failed", err), true
		}
		if d.metrics != nil {
			d.metrics.SessionCreated()
		}
		log.Info("session created", "session_id", s.ID, "conn_name", s.ConnName, "alias", s.Alias)
		return protocol.SessionInfo{Session: *s}, true

	case protocol.ListSessions:
		list, err := d.sessions.ListSessions(ctx)
		if err != nil {
			return failed(log, "list sessions failed", err), true
		}
		out := protocol.SessionList{Sessions: make([]domain.Session, 0, len(list))}
		for _, s := range list {
			out.Sessions = append(out.Sessions, *s)
		}
		return out, true

	case protocol.DetachSession:
		s, err := d.sessions.DestroySession(ctx, r.ID)
		if err != nil {
			return failed(log.With("session_id", r.ID), "detach session failed", err), true
		}
		if d.metrics != nil {
			d.metrics.SessionDestroyed()
		}
		log.Info("session detached", "session_id", s.ID)
		return protocol.SessionInfo{Session: *s}, true

	default:
		return d.unhandled(log, req)
	}
}

func (d *Dispatcher) unhandled(log logger.Logger, req protocol.Request) (protocol.Response, bool) {
	if d.policy == PolicyUnsupported {
		log.Debug("unsupported request", "type", req.MessageType())
		return protocol.Unsupported{Type: req.MessageType()}, true
	}
	log.Debug("request ignored", "type", req.MessageType())
	return nil, false
}

// failed logs err at error level when the server is at fault and at info
// level otherwise, then converts it to a response.
func failed(log logger.Logger, msg string, err error) protocol.Error {
	var de *domain.DomainError
	if errors.As(err, &de) && !de.ServerSide() {
		log.Info(msg, "error", err)
	} else {
		log.Error(msg, "error", err)
	}
	return protocol.ErrorFrom(err)
}
