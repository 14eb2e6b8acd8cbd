package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/muxd/internal/infra/buildinfo"
)

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print version information",
		Action: func(c *cli.Context) error {
			flags, err := ParseGlobalFlags(c)
			if err != nil {
				return err
			}
			return render(c, flags.Output, buildinfo.Get())
		},
	}
}
