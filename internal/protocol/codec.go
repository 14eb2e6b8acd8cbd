package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/yndnr/muxd/internal/core/domain"
)

// Decoder reads framed messages from a stream.
type Decoder struct {
	r       *bufio.Reader
	maxSize uint32
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), maxSize: MaxFrameSize}
}

// SetMaxFrameSize lowers the accepted frame size.
func (d *Decoder) SetMaxFrameSize(n uint32) {
	if n > 0 && n < MaxFrameSize {
		d.maxSize = n
	}
}

// Decode reads one request.
//
// Unrecognised type tags decode into Unknown rather than failing, so the
// caller decides what an unhandled variant means.
func (d *Decoder) Decode() (Request, error) {
	env, err := d.readEnvelope()
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeCreateSession:
		return CreateSession{}, nil
	case TypeListSessions:
		return ListSessions{}, nil
	case TypeAttachToSession:
		var m AttachToSession
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeDetachSession:
		var m DetachSession
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return Unknown{Type: env.Type, Payload: env.Payload}, nil
	}
}

// DecodeResponse reads one response.
func (d *Decoder) DecodeResponse() (Response, error) {
	env, err := d.readEnvelope()
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeSessionInfo:
		var s domain.Session
		if err := unmarshalPayload(env, &s); err != nil {
			return nil, err
		}
		return SessionInfo{Session: s}, nil
	case TypeSessionList:
		var m SessionList
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeUnsupported:
		var m Unsupported
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeError:
		var m Error
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, malformed("unknown response type %q", env.Type)
	}
}

func (d *Decoder) readEnvelope() (envelope, error) {
	data, err := ReadFrame(d.r, d.maxSize)
	if err != nil {
		return envelope{}, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, malformed("decode envelope: %v", err)
	}
	if env.Type == "" {
		return envelope{}, malformed("missing message type")
	}
	return env, nil
}

func unmarshalPayload(env envelope, target any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return malformed("%s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return malformed("%s: decode payload: %v", env.Type, err)
	}
	return nil
}

// Encoder writes framed messages to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one message as a single frame.
func (e *Encoder) Encode(m Message) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	return WriteFrame(e.w, data)
}

// Marshal returns the envelope JSON for m, without the frame header.
func Marshal(m Message) ([]byte, error) {
	if m == nil || m.MessageType() == "" {
		return nil, fmt.Errorf("protocol: message has no type")
	}

	env := envelope{Type: m.MessageType()}
	switch v := m.(type) {
	case CreateSession, ListSessions:
		// Unit variants carry no payload.
	case Unknown:
		env.Payload = v.Payload
	case SessionInfo:
		payload, err := json.Marshal(v.Session)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s: %w", env.Type, err)
		}
		env.Payload = payload
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s: %w", env.Type, err)
		}
		env.Payload = payload
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	return data, nil
}
