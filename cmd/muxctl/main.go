// Command muxctl talks to a running muxd over its unix socket.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/muxd/internal/cli/command"
)

func main() {
	app := command.App()
	// cli.Exit errors are handled inside Run; anything reaching here is a
	// usage or flag error.
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "muxctl:", err)
		os.Exit(64)
	}
}
