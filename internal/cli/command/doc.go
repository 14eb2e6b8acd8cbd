// Package command defines the muxctl command tree on urfave/cli/v2.
//
//	muxctl session create|list|detach ID
//	muxctl raw TYPE [PAYLOAD]
//	muxctl version
package command
