package command

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/muxd/internal/core/domain"
	"github.com/yndnr/muxd/internal/protocol"
)

// RawCommand sends an arbitrary request variant and prints the reply.
func RawCommand() *cli.Command {
	return &cli.Command{
		Name:      "raw",
		Usage:     "send a request of any type",
		ArgsUsage: "TYPE [JSON_PAYLOAD]",
		Action:    rawSend,
	}
}

// rawReply is the printed form of a raw response.
type rawReply struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func (r rawReply) String() string {
	data, err := json.Marshal(r.Payload)
	if err != nil || r.Payload == nil {
		return r.Type
	}
	return r.Type + " " + string(data)
}

func rawSend(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.Exit("usage: muxctl raw TYPE [JSON_PAYLOAD]", 1)
	}

	req := protocol.Unknown{Type: c.Args().Get(0)}
	if c.NArg() == 2 {
		payload := json.RawMessage(c.Args().Get(1))
		if !json.Valid(payload) {
			return exitOn(domain.ErrMalformedRequest.WithDetails(fmt.Sprintf("payload is not valid JSON: %s", payload)))
		}
		req.Payload = payload
	}

	client, flags, err := clientFrom(c)
	if err != nil {
		return exitOn(err)
	}
	resp, err := client.Send(c.Context, req)
	if err != nil {
		return exitOn(err)
	}
	return render(c, flags.Output, rawReply{Type: resp.MessageType(), Payload: resp})
}
