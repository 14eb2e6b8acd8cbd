package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/yndnr/muxd/internal/core/domain"
	"github.com/yndnr/muxd/internal/protocol"
)

// DefaultTimeout bounds a whole request when none is configured.
const DefaultTimeout = 5 * time.Second

// ErrNoResponse is returned when the server closes the connection without
// answering the request.
var ErrNoResponse = errors.New("connection: server closed the connection without a response")

// Client sends requests to a muxd socket.
type Client struct {
	path    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewClient returns a Client for the socket at path.
func NewClient(path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{path: path, timeout: timeout}
}

// Path returns the socket path.
func (c *Client) Path() string {
	return c.path
}

// Send performs one request on a fresh connection.
func (c *Client) Send(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, domain.ErrServiceUnavailable.WithDetails(c.path).WithCause(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := protocol.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.MessageType(), err)
	}

	resp, err := protocol.NewDecoder(conn).DecodeResponse()
	if err != nil {
		if errors.Is(err, protocol.ErrConnectionClosed) {
			return nil, ErrNoResponse
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// ResponseError converts an Error or Unsupported response into a
// domain error carrying the server's code.
func ResponseError(resp protocol.Response) error {
	switch r := resp.(type) {
	case protocol.Error:
		return domain.NewDomainError(r.Code, r.Message)
	case protocol.Unsupported:
		return domain.ErrUnsupportedRequest.WithDetails(r.Type)
	default:
		return nil
	}
}
