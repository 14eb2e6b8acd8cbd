// Package protocol implements the muxd wire protocol.
//
// Every message travels in its own frame:
//
//	[length:4 big-endian][payload:length]
//
// The payload is a JSON envelope carrying a tagged union:
//
//	{"type": "CreateSession"}
//	{"type": "SessionInfo", "payload": {"id": 1, "conn_name": "conn-...", "alias": "amber-falcon"}}
//
// Frames are self-delimiting, so a decoder reading a live socket never
// waits for the peer to close the stream, and several messages can share
// one connection without ambiguity.
package protocol
