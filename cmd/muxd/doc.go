// Package main is the muxd session daemon.
//
// muxd binds a local socket, detaches from the terminal and answers
// session requests framed on that socket:
//
//	muxd [--config FILE] [--socket PATH] [--log-level LEVEL] [--foreground] [start]
//	muxd version
//
// Without --foreground the launching process reports "server running
// (pid N)" once the background daemon is accepting connections.
package main
