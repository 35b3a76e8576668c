package v1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		env     Envelope
		wantErr string
	}{
		{"ok hello", Envelope{V: Version, Type: TypeHello}, ""},
		{"ok join", Envelope{V: Version, Type: TypeConversationJoin, ID: "x", TS: now}, ""},
		{"missing v", Envelope{Type: TypeHello}, "missing field: v"},
		{"wrong v", Envelope{V: "v2", Type: TypeHello}, "unsupported protocol version"},
		{"missing type", Envelope{V: Version}, "missing field: type"},
		{"unknown type", Envelope{V: Version, Type: "message_send"}, "unknown type"},
		{"join without id", Envelope{V: Version, Type: TypeConversationJoin}, "missing field: id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	env, err := NewEnvelope(TypeConversationJoin, ConversationJoinPayload{ConversationID: "abc123"}, now)
	require.NoError(t, err)
	require.NoError(t, env.Validate())
	assert.Len(t, env.ID, 26)
	assert.Equal(t, now, env.TS)

	var p ConversationJoinPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "abc123", p.ConversationID)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"conversation_id":"abc123"`)
}

func TestReply_KeepsID(t *testing.T) {
	env, err := Reply(TypeError, "req-1", ErrorPayload{Code: CodeJoinFailed, Message: "no"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "req-1", env.ID)

	var p ErrorPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, CodeJoinFailed, p.Code)
}

func TestNewID_Unique(t *testing.T) {
	now := time.Now()
	assert.NotEqual(t, NewID(now), NewID(now))
}

func TestDecodePayload_Errors(t *testing.T) {
	var p ConversationJoinPayload
	require.ErrorContains(t, Envelope{Type: TypeConversationJoin}.DecodePayload(&p), "empty payload")
	require.ErrorContains(t, Envelope{Type: TypeConversationJoin, Payload: json.RawMessage(`[`)}.DecodePayload(&p), "invalid payload")
}
