// Package localserver serves the muxd protocol on a unix domain socket.
//
//   - socket.go: Acquire binds the socket path, recovering once from a
//     missing parent directory and once from a stale socket file
//   - server.go: the accept loop and the worker pool that owns each
//     connection from first frame to close
//   - handler.go: Dispatcher maps decoded requests to session operations
//
// Access control is the socket file mode (0600): only the owning user can
// connect.
package localserver
