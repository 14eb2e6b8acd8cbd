package metric

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// Server serves /metrics over HTTP.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   logger.Logger
	done     chan struct{}
}

// NewServer creates a metrics server for addr.
func NewServer(addr string, r *Registry, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
		done:   make(chan struct{}),
	}
}

// Start binds the address and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metric: listen %s: %w", s.srv.Addr, err)
	}
	s.listener = ln
	s.logger.Info("metrics server listening", "addr", ln.Addr().String())

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
