package localserver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/muxd/internal/core/service"
	"github.com/yndnr/muxd/internal/protocol"
	"github.com/yndnr/muxd/internal/storage/memory"
	"github.com/yndnr/muxd/internal/telemetry/logger"
	"github.com/yndnr/muxd/internal/telemetry/metric"
)

type harness struct {
	path    string
	server  *Server
	metrics *metric.Registry
	done    chan error
}

func startServer(t *testing.T, cfg Config, opts ...DispatcherOption) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "muxd.sock")
	ln := acquire(t, path)
	return startOn(t, path, ln, cfg, opts...)
}

func startOn(t *testing.T, path string, ln net.Listener, cfg Config, opts ...DispatcherOption) *harness {
	t.Helper()
	m := metric.NewRegistry()
	svc := service.NewSessionService(memory.New())
	h := &harness{
		path:    path,
		metrics: m,
		server:  New(ln, NewDispatcher(svc, opts...), cfg, WithLogger(logger.Nop()), WithMetrics(m)),
		done:    make(chan error, 1),
	}
	go func() { h.done <- h.server.Serve(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.server.Shutdown(ctx)
	})
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, path string, req protocol.Message) (protocol.Response, error) {
	t.Helper()
	conn := dial(t, path)
	require.NoError(t, protocol.NewEncoder(conn).Encode(req))
	return protocol.NewDecoder(conn).DecodeResponse()
}

func createSession(t *testing.T, path string) protocol.SessionInfo {
	t.Helper()
	resp, err := roundTrip(t, path, protocol.CreateSession{})
	require.NoError(t, err)
	info, ok := resp.(protocol.SessionInfo)
	require.True(t, ok, "got %T", resp)
	return info
}

func TestServerCreateSession(t *testing.T) {
	h := startServer(t, testConfig())

	info := createSession(t, h.path)
	require.Positive(t, info.ID)
	require.NotEmpty(t, info.ConnName)
	require.NotEmpty(t, info.Alias)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.RequestsTotal.WithLabelValues(protocol.TypeCreateSession, metric.OutcomeOK)) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SessionsActive))
}

func TestServerSequentialClientsGetIndependentSessions(t *testing.T) {
	h := startServer(t, testConfig())

	first := createSession(t, h.path)
	second := createSession(t, h.path)

	require.Greater(t, second.ID, first.ID)
	require.NotEqual(t, first.ConnName, second.ConnName)
}

func TestServerSingleWorkerIsSequential(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	h := startServer(t, cfg)

	var prev int64
	for i := 0; i < 5; i++ {
		info := createSession(t, h.path)
		require.Greater(t, info.ID, prev)
		prev = info.ID
	}
}

func TestServerIgnoresUnknownVariant(t *testing.T) {
	h := startServer(t, testConfig())

	_, err := roundTrip(t, h.path, protocol.Unknown{Type: "ResizeTerminal"})
	require.ErrorIs(t, err, protocol.ErrConnectionClosed, "no response expected")

	_, err = roundTrip(t, h.path, protocol.AttachToSession{ID: 1})
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)

	createSession(t, h.path)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.RequestsTotal.WithLabelValues(metric.TypeUnknown, metric.OutcomeIgnored)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServerUnknownTypesShareOneSeries(t *testing.T) {
	h := startServer(t, testConfig())

	pad := strings.Repeat("x", 4<<10)
	for i := 0; i < 50; i++ {
		_, err := roundTrip(t, h.path, protocol.Unknown{Type: fmt.Sprintf("Junk%d-%s", i, pad)})
		require.ErrorIs(t, err, protocol.ErrConnectionClosed)
	}
	createSession(t, h.path)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.RequestsTotal.WithLabelValues(metric.TypeUnknown, metric.OutcomeIgnored)) == 50 &&
			testutil.ToFloat64(h.metrics.RequestsTotal.WithLabelValues(protocol.TypeCreateSession, metric.OutcomeOK)) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, testutil.CollectAndCount(h.metrics.RequestsTotal))
	require.Equal(t, 2, testutil.CollectAndCount(h.metrics.RequestDuration))
}

func TestServerUnsupportedPolicy(t *testing.T) {
	h := startServer(t, testConfig(), WithPolicy(PolicyUnsupported))

	resp, err := roundTrip(t, h.path, protocol.Unknown{Type: "ResizeTerminal"})
	require.NoError(t, err)
	require.Equal(t, protocol.Unsupported{Type: "ResizeTerminal"}, resp)
}

func TestServerMalformedPayloadClosesConnection(t *testing.T) {
	h := startServer(t, testConfig())

	conn := dial(t, h.path)
	require.NoError(t, protocol.WriteFrame(conn, []byte("{not json")))
	_, err := protocol.NewDecoder(conn).DecodeResponse()
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)

	conn = dial(t, h.path)
	_, err = conn.Write([]byte(`{"type":"DetachSession","payload":{"id":"x"}}`)) // no length prefix
	require.NoError(t, err)
	_, err = protocol.NewDecoder(conn).DecodeResponse()
	require.Error(t, err)

	createSession(t, h.path)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.DecodeErrors.WithLabelValues(decodeMalformed)) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestServerOversizeFrameRejected(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFrameSize = 64
	h := startServer(t, cfg)

	conn := dial(t, h.path)
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1<<30)
	_, err := conn.Write(header[:])
	require.NoError(t, err)

	_, err = protocol.NewDecoder(conn).DecodeResponse()
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)

	createSession(t, h.path)
}

func TestServerSurvivesEmptyConnections(t *testing.T) {
	h := startServer(t, testConfig())

	const n = 10
	for i := 0; i < n; i++ {
		conn, err := net.Dial("unix", h.path)
		require.NoError(t, err)
		require.NoError(t, conn.Close())
	}

	createSession(t, h.path)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.DecodeErrors.WithLabelValues(decodeClosed)) == n
	}, time.Second, 5*time.Millisecond)
}

func TestServerSingleUseConnection(t *testing.T) {
	h := startServer(t, testConfig())

	conn := dial(t, h.path)
	enc := protocol.NewEncoder(conn)
	dec := protocol.NewDecoder(conn)

	require.NoError(t, enc.Encode(protocol.CreateSession{}))
	_, err := dec.DecodeResponse()
	require.NoError(t, err)

	// The server closed after one exchange; the second write may or may
	// not fail but no response arrives.
	_ = enc.Encode(protocol.CreateSession{})
	_, err = dec.DecodeResponse()
	require.Error(t, err)
}

func TestServerConnectionReuse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestsPerConn = 3
	h := startServer(t, cfg)

	conn := dial(t, h.path)
	enc := protocol.NewEncoder(conn)
	dec := protocol.NewDecoder(conn)

	require.NoError(t, enc.Encode(protocol.CreateSession{}))
	created, err := dec.DecodeResponse()
	require.NoError(t, err)
	id := created.(protocol.SessionInfo).ID

	require.NoError(t, enc.Encode(protocol.ListSessions{}))
	listed, err := dec.DecodeResponse()
	require.NoError(t, err)
	require.Len(t, listed.(protocol.SessionList).Sessions, 1)

	require.NoError(t, enc.Encode(protocol.DetachSession{ID: id}))
	detached, err := dec.DecodeResponse()
	require.NoError(t, err)
	require.Equal(t, id, detached.(protocol.SessionInfo).ID)

	_, err = dec.DecodeResponse()
	require.ErrorIs(t, err, protocol.ErrConnectionClosed, "limit reached")
}

func TestServerReadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 50 * time.Millisecond
	h := startServer(t, cfg)

	conn := dial(t, h.path)
	_, err := protocol.NewDecoder(conn).DecodeResponse()
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.DecodeErrors.WithLabelValues(decodeTimeout)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServerAcceptRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AcceptRate = 1000
	cfg.AcceptBurst = 1
	h := startServer(t, cfg)

	for i := 0; i < 3; i++ {
		createSession(t, h.path)
	}
}

// flakyListener fails the first n Accept calls.
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

var errAcceptTransport = errors.New("accept: too many open files")

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, errAcceptTransport
	}
	return l.Listener.Accept()
}

func TestServerAcceptErrorsDoNotStopLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muxd.sock")
	ln := &flakyListener{Listener: acquire(t, path)}
	ln.failures.Store(3)

	h := startOn(t, path, ln, testConfig())

	info := createSession(t, h.path)
	require.Positive(t, info.ID)
	require.Equal(t, 3.0, testutil.ToFloat64(h.metrics.AcceptErrors))
}

func TestServerShutdown(t *testing.T) {
	h := startServer(t, testConfig())
	createSession(t, h.path)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.server.Shutdown(ctx))

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	_, err := net.Dial("unix", h.path)
	require.Error(t, err)
}

func TestServerStopsOnContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muxd.sock")
	ln := acquire(t, path)
	srv := New(ln, NewDispatcher(service.NewSessionService(memory.New())), testConfig(), WithLogger(logger.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	require.Error(t, srv.Serve(context.Background()), "second Serve")
}

func TestShutdownBeforeServe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muxd.sock")
	srv := New(acquire(t, path), NewDispatcher(nil), Config{}, WithLogger(logger.Nop()))
	require.NoError(t, srv.Shutdown(context.Background()))
}
