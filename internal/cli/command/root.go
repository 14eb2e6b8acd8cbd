package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/muxd/internal/cli/connection"
	"github.com/yndnr/muxd/internal/cli/output"
	"github.com/yndnr/muxd/internal/infra/buildinfo"
	serverconfig "github.com/yndnr/muxd/internal/server/config"
)

// App creates the muxctl application.
func App() *cli.App {
	return &cli.App{
		Name:                 "muxctl",
		Usage:                "talk to a running muxd over its local socket",
		Version:              buildinfo.Get().String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			SessionCommand(),
			RawCommand(),
			VersionCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "socket",
			Aliases: []string{"s"},
			Usage:   "muxd socket path",
			EnvVars: []string{"MUXD_SOCKET"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "read the socket path from this muxd config file",
			EnvVars: []string{"MUXD_CONFIG"},
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "request timeout",
			Value:   connection.DefaultTimeout,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
	}
}

// GlobalFlags holds the flags shared by every command.
type GlobalFlags struct {
	Socket  string
	Config  string
	Timeout time.Duration
	Output  output.Format
}

// ParseGlobalFlags extracts global flags from c.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return nil, err
	}
	return &GlobalFlags{
		Socket:  c.String("socket"),
		Config:  c.String("config"),
		Timeout: c.Duration("timeout"),
		Output:  format,
	}, nil
}

// SocketPath resolves the socket: --socket, then the config file, then the
// default location.
func (f *GlobalFlags) SocketPath() (string, error) {
	if f.Socket != "" {
		return f.Socket, nil
	}
	if f.Config != "" {
		cfg, err := serverconfig.Load(f.Config, nil)
		if err != nil {
			return "", err
		}
		return cfg.Server.SocketPath, nil
	}
	return serverconfig.DefaultSocketPath(), nil
}

// clientFrom builds a connection client from the global flags.
func clientFrom(c *cli.Context) (*connection.Client, *GlobalFlags, error) {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return nil, nil, err
	}
	path, err := flags.SocketPath()
	if err != nil {
		return nil, nil, err
	}
	return connection.NewClient(path, flags.Timeout), flags, nil
}

// render writes data to the app's writer in the selected format.
func render(c *cli.Context, format output.Format, data any) error {
	return output.NewFormatter(format).Format(writer(c), data)
}

func writer(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// exitOn maps a request failure to a non-zero exit.
func exitOn(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, connection.ErrNoResponse) {
		return cli.Exit("no response: the server does not handle this request", 2)
	}
	return cli.Exit(fmt.Sprintf("error: %v", err), 1)
}
