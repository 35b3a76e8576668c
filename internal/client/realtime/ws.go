package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/lecom/internal/common"
	v1 "github.com/dmitrijs2005/lecom/internal/contracts/realtime/v1"
	"github.com/dmitrijs2005/lecom/internal/logging"
	"github.com/dmitrijs2005/lecom/internal/metrics"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultAckTimeout       = 10 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultReconnectBase    = 500 * time.Millisecond
	defaultReconnectMax     = 30 * time.Second
	defaultReconnectTries   = 10

	maxFrameBytes = 1 << 20
)

var (
	ErrTransportClosed = errors.New("realtime transport closed")

	errBadFrame = errors.New("bad frame")
)

// TokenProvider returns the current access token, or "" when logged out.
// It is called at every dial.
type TokenProvider func() string

type WSConfig struct {
	URL   string
	Token TokenProvider

	HTTPClient       *http.Client
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	AckTimeout       time.Duration
	// PingInterval <= 0 disables keepalive pings.
	PingInterval time.Duration

	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts uint64

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

func (c *WSConfig) setDefaults() {
	if c.Token == nil {
		c.Token = func() string { return "" }
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = defaultAckTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = defaultReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = defaultReconnectMax
	}
	if c.ReconnectAttempts == 0 {
		c.ReconnectAttempts = defaultReconnectTries
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
}

// WSTransport is a Transport over a single websocket connection that
// re-dials on unexpected disconnects.
type WSTransport struct {
	cfg WSConfig
	h   Handlers
	log logging.Logger

	// lifetime of the transport, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        ConnState
	conn         *websocket.Conn
	sessionID    string
	waiters      map[string]chan v1.Envelope
	reconnecting bool
	closed       bool
}

// NewWSTransportFactory binds cfg into a TransportFactory for Manager.
func NewWSTransportFactory(cfg WSConfig) TransportFactory {
	return func(h Handlers) (Transport, error) {
		return NewWSTransport(cfg, h), nil
	}
}

func NewWSTransport(cfg WSConfig, h Handlers) *WSTransport {
	cfg.setDefaults()
	if h.Reconnected == nil {
		h.Reconnected = func(context.Context) {}
	}
	if h.Message == nil {
		h.Message = func(json.RawMessage) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WSTransport{
		cfg:     cfg,
		h:       h,
		log:     cfg.Logger.With("component", "realtime"),
		ctx:     ctx,
		cancel:  cancel,
		waiters: make(map[string]chan v1.Envelope),
	}
}

func (t *WSTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SessionID is the id assigned by the server in hello_ack.
func (t *WSTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Start dials and completes the hello handshake. It is a no-op when already
// connected and fails with common.ErrNotConnected while a reconnect is in
// progress.
func (t *WSTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrTransportClosed
	case t.state == StateConnected:
		t.mu.Unlock()
		return nil
	case t.reconnecting:
		t.mu.Unlock()
		return fmt.Errorf("%w: reconnect in progress", common.ErrNotConnected)
	}
	t.state = StateConnecting
	t.mu.Unlock()

	conn, sessionID, err := t.dial(ctx)
	if err != nil {
		t.mu.Lock()
		t.state = StateDisconnected
		t.mu.Unlock()
		return err
	}

	if !t.attach(conn, sessionID) {
		return ErrTransportClosed
	}
	t.log.Info(ctx, "realtime.connected", "session_id", sessionID)
	return nil
}

// attach makes conn the live connection and starts its loops. It reports
// false, closing conn, when the transport was closed meanwhile.
func (t *WSTransport) attach(conn *websocket.Conn, sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		_ = conn.CloseNow()
		return false
	}

	t.conn = conn
	t.sessionID = sessionID
	t.state = StateConnected

	t.wg.Add(1)
	go t.readLoop(conn)
	if t.cfg.PingInterval > 0 {
		t.wg.Add(1)
		go t.pingLoop(conn)
	}
	return true
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
	defer cancel()

	hdr := http.Header{}
	if tok := t.cfg.Token(); tok != "" {
		hdr.Set(common.AuthorizationHeaderName, common.BearerValue(tok))
	}

	conn, resp, err := websocket.Dial(ctx, t.cfg.URL, &websocket.DialOptions{
		HTTPClient:   t.cfg.HTTPClient,
		HTTPHeader:   hdr,
		Subprotocols: []string{v1.Subprotocol},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, "", fmt.Errorf("%w: realtime handshake: %w", common.ErrUnauthenticated, err)
		}
		return nil, "", fmt.Errorf("%w: realtime dial: %w", common.ErrUnavailable, err)
	}

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return nil, "", fmt.Errorf("%w: server chose subprotocol %q", common.ErrUnavailable, sp)
	}
	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := t.hello(ctx, conn)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "hello failed")
		return nil, "", err
	}
	return conn, sessionID, nil
}

func (t *WSTransport) hello(ctx context.Context, conn *websocket.Conn) (string, error) {
	env, err := v1.NewEnvelope(v1.TypeHello, v1.HelloPayload{}, time.Now())
	if err != nil {
		return "", err
	}
	if err := writeEnvelope(ctx, conn, env, t.cfg.WriteTimeout); err != nil {
		return "", fmt.Errorf("%w: send hello: %w", common.ErrUnavailable, err)
	}

	reply, err := readEnvelope(ctx, conn)
	if err != nil {
		return "", fmt.Errorf("%w: read hello_ack: %w", common.ErrUnavailable, err)
	}

	switch reply.Type {
	case v1.TypeHelloAck:
		var ack v1.HelloAckPayload
		if err := reply.DecodePayload(&ack); err != nil {
			return "", err
		}
		return ack.SessionID, nil
	case v1.TypeError:
		var p v1.ErrorPayload
		_ = reply.DecodePayload(&p)
		if p.Code == v1.CodeUnauthorized {
			return "", fmt.Errorf("%w: hello rejected: %s", common.ErrUnauthenticated, p.Message)
		}
		return "", fmt.Errorf("hello rejected: %s: %s", p.Code, p.Message)
	default:
		return "", fmt.Errorf("unexpected %q before hello_ack", reply.Type)
	}
}

// Subscribe joins topic and waits for the server echo.
func (t *WSTransport) Subscribe(ctx context.Context, topic string) error {
	env, err := v1.NewEnvelope(v1.TypeConversationJoin, v1.ConversationJoinPayload{ConversationID: topic}, time.Now())
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.state != StateConnected || t.conn == nil {
		t.mu.Unlock()
		return common.ErrNotConnected
	}
	conn := t.conn
	ch := make(chan v1.Envelope, 1)
	t.waiters[env.ID] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.waiters, env.ID)
		t.mu.Unlock()
	}()

	if err := writeEnvelope(ctx, conn, env, t.cfg.WriteTimeout); err != nil {
		return fmt.Errorf("%w: send join: %w", common.ErrNotConnected, err)
	}

	timer := time.NewTimer(t.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: disconnected while joining %q", common.ErrNotConnected, topic)
		}
		if reply.Type == v1.TypeError {
			var p v1.ErrorPayload
			_ = reply.DecodePayload(&p)
			return fmt.Errorf("%w: %s: %s", common.ErrSubscribeRejected, p.Code, p.Message)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no join echo for %q", common.ErrUnavailable, topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	for {
		env, err := readEnvelope(t.ctx, conn)
		if errors.Is(err, errBadFrame) {
			t.log.Debug(t.ctx, "realtime.bad_frame", "error", err)
			continue
		}
		if err != nil {
			if t.detach(conn, err) {
				t.reconnect()
			}
			return
		}

		if err := env.Validate(); err != nil {
			t.log.Debug(t.ctx, "realtime.bad_envelope", "error", err)
			continue
		}

		switch env.Type {
		case v1.TypeMessageNew:
			var p v1.MessageNewPayload
			if err := env.DecodePayload(&p); err != nil {
				t.log.Debug(t.ctx, "realtime.bad_payload", "error", err)
				continue
			}
			t.h.Message(p.Message)

		case v1.TypeConversationJoin, v1.TypeError:
			if !t.deliver(env) && env.Type == v1.TypeError {
				var p v1.ErrorPayload
				_ = env.DecodePayload(&p)
				t.log.Warn(t.ctx, "realtime.server_error", "code", p.Code, "message", p.Message)
			}
		}
	}
}

func (t *WSTransport) deliver(env v1.Envelope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.waiters[env.ID]
	if !ok {
		return false
	}
	delete(t.waiters, env.ID)
	ch <- env
	return true
}

// detach drops conn after a read error. It reports whether a reconnect
// should follow.
func (t *WSTransport) detach(conn *websocket.Conn, cause error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != conn {
		return false
	}
	t.conn = nil
	t.failWaitersLocked()
	_ = conn.CloseNow()

	if t.closed {
		t.state = StateDisconnected
		return false
	}

	t.log.Warn(t.ctx, "realtime.disconnected", "session_id", t.sessionID, "close_status", websocket.CloseStatus(cause), "error", cause)
	t.state = StateConnecting
	t.reconnecting = true
	return true
}

func (t *WSTransport) failWaitersLocked() {
	for id, ch := range t.waiters {
		close(ch)
		delete(t.waiters, id)
	}
}

func (t *WSTransport) reconnect() {
	b := retry.NewExponential(t.cfg.ReconnectBase)
	b = retry.WithCappedDuration(t.cfg.ReconnectMax, b)
	b = retry.WithMaxRetries(t.cfg.ReconnectAttempts, b)

	var (
		conn      *websocket.Conn
		sessionID string
		attempt   int
	)
	err := retry.Do(t.ctx, b, func(ctx context.Context) error {
		attempt++
		c, sid, err := t.dial(ctx)
		if err != nil {
			t.log.Info(ctx, "realtime.reconnect_failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		conn, sessionID = c, sid
		return nil
	})

	t.mu.Lock()
	t.reconnecting = false
	if err != nil {
		t.state = StateDisconnected
		t.mu.Unlock()
		t.log.Warn(t.ctx, "realtime.reconnect_gave_up", "attempts", attempt, "error", err)
		return
	}
	t.mu.Unlock()

	if !t.attach(conn, sessionID) {
		return
	}

	t.cfg.Metrics.Reconnect()
	t.log.Info(t.ctx, "realtime.reconnected", "session_id", sessionID, "attempts", attempt)
	t.h.Reconnected(t.ctx)
}

func (t *WSTransport) pingLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			live := t.conn == conn
			t.mu.Unlock()
			if !live {
				return
			}

			ctx, cancel := context.WithTimeout(t.ctx, t.cfg.WriteTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				t.log.Info(t.ctx, "realtime.ping_failed", "error", err)
				// the read loop observes the close and reconnects
				_ = conn.CloseNow()
				return
			}
		}
	}
}

// Close stops reconnecting and closes the connection. Safe to call twice.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.state = StateDisconnected
	t.failWaitersLocked()
	t.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	t.cancel()
	t.wg.Wait()
	return err
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("%w: unsupported message type: %v", errBadFrame, mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %w", errBadFrame, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
