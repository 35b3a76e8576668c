package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Handlers are bound to a transport once, when it is built.
type Handlers struct {
	// Reconnected fires once after each successful automatic reconnect,
	// never for the initial Start.
	Reconnected func(ctx context.Context)
	// Message receives each inbound chat message payload.
	Message func(payload json.RawMessage)
}

type Transport interface {
	Start(ctx context.Context) error
	Subscribe(ctx context.Context, topic string) error
	State() ConnState
	Close() error
}

type TransportFactory func(h Handlers) (Transport, error)
