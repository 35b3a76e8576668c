package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dmitrijs2005/lecom/internal/logging"
	"github.com/dmitrijs2005/lecom/internal/metrics"
)

var ErrEmptyTopic = errors.New("empty topic")

type MessageHandler func(payload json.RawMessage)

type Manager struct {
	factory TransportFactory
	logger  logging.Logger
	metrics *metrics.Metrics

	// serializes Connect and Close
	lifecycle sync.Mutex

	mu        sync.Mutex
	transport Transport
	topic     string
	handler   MessageHandler
}

type Option func(*Manager)

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(factory TransportFactory, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		logger:  logging.Discard(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Connect makes topic the active subscription. The transport is built and
// started when needed; a live connection is reused and only the subscribe is
// sent. Start and subscribe errors are returned as is.
func (m *Manager) Connect(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	t, err := m.ensureTransport()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.topic = topic
	m.mu.Unlock()

	if t.State() != StateConnected {
		if err := t.Start(ctx); err != nil {
			m.logger.Warn(ctx, "realtime.connect_failed", "topic", topic, "error", err)
			return err
		}
	}

	if err := t.Subscribe(ctx, topic); err != nil {
		m.logger.Warn(ctx, "realtime.subscribe_failed", "topic", topic, "error", err)
		return err
	}
	m.logger.Info(ctx, "realtime.subscribed", "topic", topic)
	return nil
}

func (m *Manager) ensureTransport() (Transport, error) {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t != nil {
		return t, nil
	}

	// self is filled in before Start, so before any reconnect can fire.
	var self Transport
	t, err := m.factory(Handlers{
		Reconnected: func(ctx context.Context) { m.onReconnected(ctx, self) },
		Message:     m.dispatch,
	})
	if err != nil {
		return nil, err
	}
	self = t

	m.mu.Lock()
	m.transport = t
	m.mu.Unlock()
	return t, nil
}

// onReconnected runs on the transport's goroutine, so it must not take the
// lifecycle lock. Events from a transport that has since been replaced are
// ignored.
func (m *Manager) onReconnected(ctx context.Context, from Transport) {
	m.mu.Lock()
	t, topic := m.transport, m.topic
	m.mu.Unlock()

	if t == nil || t != from || topic == "" {
		return
	}

	m.metrics.Resubscribe()
	if err := t.Subscribe(ctx, topic); err != nil {
		m.logger.Warn(ctx, "realtime.resubscribe_failed", "topic", topic, "error", err)
		return
	}
	m.logger.Info(ctx, "realtime.resubscribed", "topic", topic)
}

func (m *Manager) dispatch(payload json.RawMessage) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()

	if h != nil {
		h(payload)
	}
}

// OnMessage installs h as the only message handler, replacing any previous one.
func (m *Manager) OnMessage(h MessageHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

func (m *Manager) OffMessage() {
	m.OnMessage(nil)
}

func (m *Manager) Topic() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topic
}

func (m *Manager) State() ConnState {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()

	if t == nil {
		return StateDisconnected
	}
	return t.State()
}

// Close tears the session down and forgets the topic. A later Connect
// builds a new transport. The message handler is kept.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.topic = ""
	m.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.Close()
}
