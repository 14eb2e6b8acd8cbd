package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/muxd/internal/infra/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "muxd: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "muxd",
		Usage:   "local session daemon",
		Version: buildinfo.Get().String(),
		Flags:   startFlags(),
		Action:  startAction,
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "start the daemon (default)",
				Flags:  startFlags(),
				Action: startAction,
			},
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, buildinfo.Get().String())
					return nil
				},
			},
		},
	}
}

func startFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "configuration file (YAML)",
			EnvVars: []string{"MUXD_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "socket",
			Aliases: []string{"s"},
			Usage:   "socket path, overrides server.socket_path",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error; overrides log.level",
		},
		&cli.BoolFlag{
			Name:    "foreground",
			Aliases: []string{"f"},
			Usage:   "stay attached to the terminal",
		},
	}
}

// overrides turns the flags that were set into dotted config keys.
func overrides(c *cli.Context) map[string]any {
	out := map[string]any{}
	if c.IsSet("socket") {
		out["server.socket_path"] = c.String("socket")
	}
	if c.IsSet("log-level") {
		out["log.level"] = c.String("log-level")
	}
	return out
}

func startAction(c *cli.Context) error {
	opts := startOptions{
		ConfigFile: c.String("config"),
		Overrides:  overrides(c),
		Foreground: c.Bool("foreground"),
	}
	if err := start(c.Context, opts); err != nil {
		return cli.Exit(fmt.Sprintf("muxd: %v", err), 1)
	}
	return nil
}
