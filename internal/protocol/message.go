package protocol

import (
	"encoding/json"

	"github.com/yndnr/muxd/internal/core/domain"
)

// Message type tags.
const (
	TypeCreateSession   = "CreateSession"
	TypeAttachToSession = "AttachToSession"
	TypeDetachSession   = "DetachSession"
	TypeListSessions    = "ListSessions"

	TypeSessionInfo = "SessionInfo"
	TypeSessionList = "SessionList"
	TypeUnsupported = "Unsupported"
	TypeError       = "Error"
)

// Message is anything that can be framed onto the wire.
type Message interface {
	MessageType() string
}

// Request is a client to server message.
type Request interface {
	Message
	isRequest()
}

// Response is a server to client message.
type Response interface {
	Message
	isResponse()
}

// CreateSession asks the server to allocate a new session.
type CreateSession struct{}

// ListSessions asks for every live session.
type ListSessions struct{}

// AttachToSession asks to attach to an existing session.
type AttachToSession struct {
	ID int64 `json:"id"`
}

// DetachSession asks the server to destroy a session.
type DetachSession struct {
	ID int64 `json:"id"`
}

// Unknown carries a request variant this server does not recognise.
type Unknown struct {
	Type    string
	Payload json.RawMessage
}

func (CreateSession) MessageType() string   { return TypeCreateSession }
func (ListSessions) MessageType() string    { return TypeListSessions }
func (AttachToSession) MessageType() string { return TypeAttachToSession }
func (DetachSession) MessageType() string   { return TypeDetachSession }
func (u Unknown) MessageType() string       { return u.Type }

func (CreateSession) isRequest()   {}
func (ListSessions) isRequest()    {}
func (AttachToSession) isRequest() {}
func (DetachSession) isRequest()   {}
func (Unknown) isRequest()         {}

// SessionInfo describes one session.
type SessionInfo struct {
	domain.Session
}

// SessionList describes every live session, ordered by id.
type SessionList struct {
	Sessions []domain.Session `json:"sessions"`
}

// Unsupported reports a request variant that has no handler.
type Unsupported struct {
	Type string `json:"type"`
}

// Error reports a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (SessionInfo) MessageType() string { return TypeSessionInfo }
func (SessionList) MessageType() string { return TypeSessionList }
func (Unsupported) MessageType() string { return TypeUnsupported }
func (Error) MessageType() string       { return TypeError }

func (SessionInfo) isResponse() {}
func (SessionList) isResponse() {}
func (Unsupported) isResponse() {}
func (Error) isResponse()       {}

// ErrorFrom converts err into an Error response, keeping domain codes.
func ErrorFrom(err error) Error {
	code := domain.CodeOf(err)
	if code == "" {
		code = domain.ErrInternalServer.Code
	}
	return Error{Code: code, Message: err.Error()}
}

// envelope is the JSON shape of every frame payload.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
