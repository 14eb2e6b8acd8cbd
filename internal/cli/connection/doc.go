// Package connection is the muxctl side of the local socket protocol.
//
// Each Send dials the server, writes one request frame and reads one
// response frame. A server that closes the connection without answering
// (the default policy for request variants it does not handle) yields
// ErrNoResponse.
package connection
