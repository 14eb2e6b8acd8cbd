package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/muxd/internal/core/domain"
)

func TestRequestRoundTrip(t *testing.T) {
	requests := []Request{
		CreateSession{},
		ListSessions{},
		AttachToSession{ID: 4},
		DetachSession{ID: 9},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, req := range requests {
		require.NoError(t, enc.Encode(req))
	}

	dec := NewDecoder(&buf)
	for _, want := range requests {
		got, err := dec.Decode()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := dec.Decode()
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestResponseRoundTrip(t *testing.T) {
	sess := domain.Session{ID: 12345, ConnName: "conn-bar", Alias: "foo", CreatedAt: 42}
	responses := []Response{
		SessionInfo{Session: sess},
		SessionList{Sessions: []domain.Session{sess}},
		Unsupported{Type: "Resize"},
		Error{Code: "MX-SESS-4040", Message: "session not found"},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, resp := range responses {
		require.NoError(t, enc.Encode(resp))
	}

	dec := NewDecoder(&buf)
	for _, want := range responses {
		got, err := dec.DecodeResponse()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestMarshalSessionInfoShape(t *testing.T) {
	data, err := Marshal(SessionInfo{Session: domain.Session{ID: 1, ConnName: "conn-a", Alias: "b"}})
	require.NoError(t, err)

	var raw struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, TypeSessionInfo, raw.Type)
	require.EqualValues(t, 1, raw.Payload["id"])
	require.Equal(t, "conn-a", raw.Payload["conn_name"])
	require.Equal(t, "b", raw.Payload["alias"])
}

func TestMarshalUnitVariantHasNoPayload(t *testing.T) {
	data, err := Marshal(CreateSession{})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"CreateSession"}`, string(data))
}

func TestDecodeUnknownVariant(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"type":"Resize","payload":{"cols":80}}`)))

	req, err := NewDecoder(&buf).Decode()
	require.NoError(t, err)

	unknown, ok := req.(Unknown)
	require.True(t, ok, "got %T", req)
	require.Equal(t, "Resize", unknown.Type)
	require.JSONEq(t, `{"cols":80}`, string(unknown.Payload))
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not-json`},
		{"missing type", `{"payload":{}}`},
		{"empty type", `{"type":""}`},
		{"attach without payload", `{"type":"AttachToSession"}`},
		{"detach with bad payload", `{"type":"DetachSession","payload":{"id":"x"}}`},
		{"json array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, []byte(tt.payload)))
			_, err := NewDecoder(&buf).Decode()
			require.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestDecodeEmptyStream(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil)).Decode()
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestDecodeRespectsMaxFrameSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(DetachSession{ID: 1}))

	dec := NewDecoder(&buf)
	dec.SetMaxFrameSize(8)
	_, err := dec.Decode()
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeResponseUnknownType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"type":"Mystery","payload":{}}`)))
	_, err := NewDecoder(&buf).DecodeResponse()
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestErrorFrom(t *testing.T) {
	resp := ErrorFrom(domain.ErrSessionNotFound.WithDetails("id 3"))
	require.Equal(t, "MX-SESS-4040", resp.Code)
	require.Contains(t, resp.Message, "id 3")

	resp = ErrorFrom(json.Unmarshal([]byte("x"), new(int)))
	require.Equal(t, domain.ErrInternalServer.Code, resp.Code)
}
