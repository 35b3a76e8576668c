// Package v1 defines the chat realtime wire protocol shared by the client
// transport and the dev server hub.
//
// Every frame is a JSON Envelope. A session starts with hello / hello_ack.
// conversation_join is answered by an echo carrying the same envelope id, or
// by an error envelope with that id. message_new is pushed by the server to
// every member of a conversation.
package v1

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	Version = "v1"

	// Subprotocol is negotiated during the websocket handshake.
	Subprotocol = "lecom.chat.v1"
)

const (
	TypeHello            = "hello"
	TypeHelloAck         = "hello_ack"
	TypeConversationJoin = "conversation_join"
	TypeMessageNew       = "message_new"
	TypeError            = "error"
)

// Error codes carried by ErrorPayload.
const (
	CodeBadEnvelope  = "bad_envelope"
	CodeBadPayload   = "bad_payload"
	CodeUnauthorized = "unauthorized"
	CodeJoinFailed   = "join_failed"
	CodeUnsupported  = "unsupported"
)

type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello, TypeHelloAck, TypeConversationJoin, TypeMessageNew, TypeError:
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}

	if e.Type == TypeConversationJoin && strings.TrimSpace(e.ID) == "" {
		return errors.New("missing field: id")
	}
	return nil
}

// NewID returns a ULID for envelope ids.
func NewID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// NewEnvelope marshals payload into a fresh envelope stamped with now.
func NewEnvelope(typ string, payload any, now time.Time) (Envelope, error) {
	return Reply(typ, NewID(now), payload, now)
}

// Reply builds an envelope that reuses id, used for join echoes and errors
// that answer a specific request.
func Reply(typ, id string, payload any, now time.Time) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		raw = b
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: now.UTC(), Payload: raw}, nil
}

// DecodePayload unmarshals e.Payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Type, err)
	}
	return nil
}

// ---- Payloads ----

type HelloPayload struct{}

type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

type ConversationJoinPayload struct {
	ConversationID string `json:"conversation_id"`
}

// MessageNewPayload wraps the backend chat message, which the client passes
// through without interpreting.
type MessageNewPayload struct {
	ConversationID string          `json:"conversation_id"`
	Message        json.RawMessage `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
