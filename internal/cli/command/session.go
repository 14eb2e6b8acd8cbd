package command

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/muxd/internal/cli/connection"
	"github.com/yndnr/muxd/internal/cli/output"
	"github.com/yndnr/muxd/internal/core/domain"
	"github.com/yndnr/muxd/internal/protocol"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "manage sessions",
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "create a session",
				Action: sessionCreate,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "list live sessions",
				Action:  sessionList,
			},
			{
				Name:      "detach",
				Usage:     "destroy a session",
				ArgsUsage: "SESSION_ID",
				Action:    sessionDetach,
			},
		},
	}
}

// sessionView is the rendering of one or more sessions.
type sessionView []domain.Session

func (v sessionView) Table() *output.Table {
	t := output.NewTable("ID", "CONN NAME", "ALIAS", "CREATED")
	for _, s := range v {
		t.AddRow(
			strconv.FormatInt(s.ID, 10),
			s.ConnName,
			s.Alias,
			s.CreatedAtTime().Local().Format(time.DateTime),
		)
	}
	return t
}

func sessionCreate(c *cli.Context) error {
	return sendSession(c, protocol.CreateSession{})
}

func sessionDetach(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: muxctl session detach SESSION_ID", 1)
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return cli.Exit(fmt.Sprintf("invalid session id %q", c.Args().First()), 1)
	}
	return sendSession(c, protocol.DetachSession{ID: id})
}

func sendSession(c *cli.Context, req protocol.Request) error {
	client, flags, err := clientFrom(c)
	if err != nil {
		return exitOn(err)
	}
	resp, err := client.Send(c.Context, req)
	if err != nil {
		return exitOn(err)
	}
	if err := connection.ResponseError(resp); err != nil {
		return exitOn(err)
	}

	info, ok := resp.(protocol.SessionInfo)
	if !ok {
		return exitOn(fmt.Errorf("unexpected %s response", resp.MessageType()))
	}
	if flags.Output == output.FormatTable {
		return render(c, flags.Output, sessionView{info.Session})
	}
	return render(c, flags.Output, info.Session)
}

func sessionList(c *cli.Context) error {
	client, flags, err := clientFrom(c)
	if err != nil {
		return exitOn(err)
	}
	resp, err := client.Send(c.Context, protocol.ListSessions{})
	if err != nil {
		return exitOn(err)
	}
	if err := connection.ResponseError(resp); err != nil {
		return exitOn(err)
	}

	list, ok := resp.(protocol.SessionList)
	if !ok {
		return exitOn(fmt.Errorf("unexpected %s response", resp.MessageType()))
	}
	if flags.Output == output.FormatTable {
		return render(c, flags.Output, sessionView(list.Sessions))
	}
	if list.Sessions == nil {
		list.Sessions = []domain.Session{}
	}
	return render(c, flags.Output, list.Sessions)
}
