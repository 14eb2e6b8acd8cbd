package localserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/muxd/internal/protocol"
	"github.com/yndnr/muxd/internal/telemetry/logger"
	"github.com/yndnr/muxd/internal/telemetry/metric"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Decode failure kinds reported to metrics.
const (
	decodeClosed    = "closed"
	decodeMalformed = "malformed"
	decodeTimeout   = "timeout"
	decodeIO        = "io"
)

// Config tunes the server.
type Config struct {
	// Workers is the number of connections served at once. 1 serves
	// connections strictly in accept order.
	Workers int

	// ReadTimeout and WriteTimeout bound every frame read and write.
	// Zero disables the deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxRequestsPerConn is the number of requests read from one
	// connection before it is closed.
	MaxRequestsPerConn int

	// AcceptRate limits accepts per second. Zero disables the limiter.
	AcceptRate  float64
	AcceptBurst int

	// MaxFrameSize lowers protocol.MaxFrameSize for incoming frames.
	MaxFrameSize uint32
}

// DefaultConfig returns the single-use, four-worker configuration.
func DefaultConfig() Config {
	return Config{
		Workers:            4,
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestsPerConn: 1,
	}
}

// Server accepts connections on a listener and hands each one to a worker.
type Server struct {
	cfg      Config
	listener net.Listener
	handler  Handler
	logger   logger.Logger
	metrics  *metric.Registry
	limiter  *rate.Limiter

	conns   chan net.Conn
	connSeq atomic.Uint64

	started   atomic.Bool
	stopping  atomic.Bool
	quit      chan struct{}
	quitOnce  sync.Once
	serveDone chan struct{}
	workers   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a server for an already bound listener.
func New(ln net.Listener, h Handler, cfg Config, opts ...Option) *Server {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxRequestsPerConn < 1 {
		cfg.MaxRequestsPerConn = 1
	}
	s := &Server{
		cfg:       cfg,
		listener:  ln,
		handler:   h,
		logger:    logger.Default(),
		conns:     make(chan net.Conn, cfg.Workers),
		quit:      make(chan struct{}),
		serveDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metric.NewRegistry()
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	return s
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until Shutdown is called or ctx ends. It
// returns nil after an orderly stop, once every accepted connection has
// been served. Accept errors are logged and retried, never returned.
func (s *Server) Serve(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("localserver: Serve called twice")
	}
	defer close(s.serveDone)

	// Handlers keep running while the server drains.
	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		s.workers.Add(1)
		go s.worker(workCtx)
	}

	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-s.quit:
		case <-s.serveDone:
		}
	}()

	s.logger.Info("accepting connections",
		"addr", s.listener.Addr().String(),
		"workers", s.cfg.Workers,
		"max_requests_per_conn", s.cfg.MaxRequestsPerConn)

	s.acceptLoop(ctx)

	close(s.conns)
	s.workers.Wait()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	var backoff time.Duration
	for {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.IncAcceptThrottled()
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.metrics.IncAcceptError()

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.logger.Warn("accept failed", "error", err, "retry_in", backoff)

			t := time.NewTimer(backoff)
			select {
			case <-t.C:
			case <-s.quit:
				t.Stop()
				return
			}
			continue
		}
		backoff = 0

		s.metrics.ConnOpened()
		select {
		case s.conns <- conn:
		case <-s.quit:
			// Stopping while every worker is busy: drop the connection.
			conn.Close()
			s.metrics.ConnClosed()
			return
		}
	}
}

func (s *Server) worker(ctx context.Context) {
	defer s.workers.Done()
	for conn := range s.conns {
		s.serveConn(ctx, conn)
	}
}

// serveConn owns conn until it is closed.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.metrics.ConnClosed()
	defer conn.Close()

	id := s.connSeq.Add(1)
	ctx = logger.WithConnID(logger.WithLogger(ctx, s.logger), id)
	log := logger.L(ctx)

	dec := protocol.NewDecoder(conn)
	if s.cfg.MaxFrameSize > 0 {
		dec.SetMaxFrameSize(s.cfg.MaxFrameSize)
	}
	enc := protocol.NewEncoder(conn)

	for served := 0; served < s.cfg.MaxRequestsPerConn; served++ {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		req, err := dec.Decode()
		if err != nil {
			s.decodeFailed(log, served, err)
			return
		}

		label := requestLabel(req)
		if u, ok := req.(protocol.Unknown); ok {
			log.Debug("unrecognised request type", "type", truncate(u.Type, maxLoggedType))
		}

		start := time.Now()
		resp, ok := s.handler.Dispatch(ctx, req)
		if !ok {
			s.metrics.ObserveRequest(label, metric.OutcomeIgnored, time.Since(start))
			return
		}

		if s.cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if err := enc.Encode(resp); err != nil {
			log.Warn("write response failed", "type", resp.MessageType(), "error", err)
			s.metrics.ObserveRequest(label, metric.OutcomeError, time.Since(start))
			return
		}
		s.metrics.ObserveRequest(label, outcomeOf(resp), time.Since(start))
	}
}

func (s *Server) decodeFailed(log logger.Logger, served int, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, protocol.ErrConnectionClosed):
		if served > 0 {
			return
		}
		s.metrics.IncDecodeError(decodeClosed)
		log.Debug("connection closed before first frame")
	case errors.Is(err, protocol.ErrMalformedMessage):
		s.metrics.IncDecodeError(decodeMalformed)
		log.Warn("malformed request", "error", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		s.metrics.IncDecodeError(decodeTimeout)
		log.Info("read timed out", "served", served)
	default:
		s.metrics.IncDecodeError(decodeIO)
		log.Warn("read request failed", "error", err)
	}
}

// maxLoggedType caps how much of a client-chosen type tag reaches the log.
const maxLoggedType = 64

// requestLabel is the "type" metric label for req. Tags the server does not
// know all share one label so clients cannot mint new series.
func requestLabel(req protocol.Request) string {
	if _, ok := req.(protocol.Unknown); ok {
		return metric.TypeUnknown
	}
	return req.MessageType()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func outcomeOf(resp protocol.Response) string {
	switch resp.(type) {
	case protocol.Error:
		return metric.OutcomeError
	case protocol.Unsupported:
		return metric.OutcomeUnsupported
	default:
		return metric.OutcomeOK
	}
}

func (s *Server) stop() {
	s.quitOnce.Do(func() {
		s.stopping.Store(true)
		close(s.quit)
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("close listener", "error", err)
		}
	})
}

// Shutdown stops accepting, lets the workers finish the queued
// connections and waits for Serve to return or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.serveDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
