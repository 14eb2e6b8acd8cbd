package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// Hook is a cleanup step run at shutdown.
type Hook func(context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	logger  logger.Logger

	mu    sync.Mutex
	hooks []namedHook

	once sync.Once
	err  error
	done chan struct{}
}

// NewHandler creates a new shutdown handler.
func NewHandler(timeout time.Duration, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  log,
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a hook. Hooks run in reverse order of registration.
func (h *Handler) OnShutdown(name string, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: hook})
}

// OnShutdownFunc registers a hook that cannot fail.
func (h *Handler) OnShutdownFunc(name string, fn func()) {
	h.OnShutdown(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Wait blocks until SIGINT or SIGTERM and then runs the hooks.
func (h *Handler) Wait() error {
	return h.WaitContext(context.Background())
}

// WaitContext blocks until a termination signal arrives or ctx ends, then
// runs the hooks.
func (h *Handler) WaitContext(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		h.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		h.logger.Info("shutdown requested", "reason", context.Cause(ctx))
	}
	return h.Shutdown()
}

// Shutdown runs the hooks once. Later calls return the first result.
// Every hook runs even if an earlier one fails; the errors are joined.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		defer close(h.done)

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := make([]namedHook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			hook := hooks[i]
			start := time.Now()
			if err := hook.fn(ctx); err != nil {
				h.logger.Error("shutdown hook failed", "hook", hook.name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
				continue
			}
			h.logger.Debug("shutdown hook done", "hook", hook.name, "elapsed", time.Since(start))
		}
		h.err = errors.Join(errs...)
	})
	<-h.done
	return h.err
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
