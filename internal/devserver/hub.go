package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/dmitrijs2005/lecom/internal/common"
	v1 "github.com/dmitrijs2005/lecom/internal/contracts/realtime/v1"
	"github.com/dmitrijs2005/lecom/internal/logging"
)

const (
	hubSendQueueSize = 64
	hubWriteTimeout  = 5 * time.Second
	hubMaxFrameBytes = 1 << 20
)

type hubClient struct {
	sessionID string
	userID    string
	conn      *websocket.Conn
	send      chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub serves the chat websocket endpoint. Clients join conversations they
// take part in and receive message_new for each of them.
type Hub struct {
	log    logging.Logger
	store  *store
	verify func(token string) (string, error)

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	topics  map[string]map[*hubClient]struct{}
	joins   map[string]int
}

func newHub(log logging.Logger, st *store, verify func(string) (string, error)) *Hub {
	return &Hub{
		log:     log.With("component", "hub"),
		store:   st,
		verify:  verify,
		clients: make(map[*hubClient]struct{}),
		topics:  make(map[string]map[*hubClient]struct{}),
		joins:   make(map[string]int),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := h.verify(bearerToken(r))
	if err != nil {
		h.log.Info(ctx, "hub.reject.auth", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{v1.Subprotocol},
	})
	if err != nil {
		h.log.Error(ctx, "hub.accept.fail", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		h.log.Info(ctx, "hub.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(hubMaxFrameBytes)

	c := &hubClient{
		sessionID: ulid.Make().String(),
		userID:    userID,
		conn:      conn,
		send:      make(chan v1.Envelope, hubSendQueueSize),
		done:      make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, c)
	}()

	h.readLoop(ctx, c)

	c.close()
	cancel()
	<-writerDone
}

func (h *Hub) writeLoop(ctx context.Context, c *hubClient) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case env := <-c.send:
			if err := writeEnvelope(ctx, c.conn, env); err != nil {
				h.log.Info(ctx, "hub.write.fail", "session_id", c.sessionID, "close_status", websocket.CloseStatus(err), "error", err)
				_ = c.conn.CloseNow()
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *hubClient) {
	for {
		mt, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.log.Info(ctx, "hub.read.fail", "session_id", c.sessionID, "error", err)
			}
			return
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.trySendError(c, "", v1.CodeBadEnvelope, "invalid JSON")
			continue
		}
		if err := env.Validate(); err != nil {
			h.trySendError(c, env.ID, v1.CodeBadEnvelope, err.Error())
			continue
		}

		switch env.Type {
		case v1.TypeHello:
			ack, err := v1.Reply(v1.TypeHelloAck, env.ID, v1.HelloAckPayload{SessionID: c.sessionID}, time.Now())
			if err != nil {
				h.trySendError(c, env.ID, v1.CodeBadPayload, err.Error())
				continue
			}
			h.enqueue(c, ack)

		case v1.TypeConversationJoin:
			h.onJoin(ctx, c, env)

		default:
			h.trySendError(c, env.ID, v1.CodeUnsupported, fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}
}

func (h *Hub) onJoin(ctx context.Context, c *hubClient, env v1.Envelope) {
	var p v1.ConversationJoinPayload
	if err := env.DecodePayload(&p); err != nil {
		h.trySendError(c, env.ID, v1.CodeBadPayload, err.Error())
		return
	}
	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		h.trySendError(c, env.ID, v1.CodeBadPayload, "missing conversation_id")
		return
	}

	if err := h.store.CanJoin(convID, c.userID); err != nil {
		h.log.Info(ctx, "hub.join.reject", "session_id", c.sessionID, "conversation_id", convID, "error", err)
		h.trySendError(c, env.ID, v1.CodeJoinFailed, err.Error())
		return
	}

	h.mu.Lock()
	members, ok := h.topics[convID]
	if !ok {
		members = make(map[*hubClient]struct{})
		h.topics[convID] = members
	}
	members[c] = struct{}{}
	h.joins[convID]++
	h.mu.Unlock()

	echo, err := v1.Reply(v1.TypeConversationJoin, env.ID, v1.ConversationJoinPayload{ConversationID: convID}, time.Now())
	if err != nil {
		h.trySendError(c, env.ID, v1.CodeBadPayload, err.Error())
		return
	}
	h.log.Debug(ctx, "hub.join", "session_id", c.sessionID, "conversation_id", convID)
	h.enqueue(c, echo)
}

// Publish pushes message as message_new to every client joined to convID.
func (h *Hub) Publish(convID string, message any) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	env, err := v1.NewEnvelope(v1.TypeMessageNew, v1.MessageNewPayload{ConversationID: convID, Message: raw}, time.Now())
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.topics[convID] {
		h.enqueue(c, env)
	}
	return nil
}

// Joins returns how many joins convID has received since the hub started.
func (h *Hub) Joins(convID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joins[convID]
}

// Sessions returns the number of open websocket sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// DropAll closes every open session abnormally, as a network failure would.
func (h *Hub) DropAll() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.CloseNow()
	}
}

func (h *Hub) register(c *hubClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	for id, members := range h.topics {
		delete(members, c)
		if len(members) == 0 {
			delete(h.topics, id)
		}
	}
	h.mu.Unlock()
}

// enqueue drops the envelope when the client is gone or its queue is full.
func (h *Hub) enqueue(c *hubClient, env v1.Envelope) {
	select {
	case <-c.done:
	case c.send <- env:
	default:
		h.log.Warn(context.Background(), "hub.backpressure", "session_id", c.sessionID, "type", env.Type)
	}
}

func (h *Hub) trySendError(c *hubClient, id, code, msg string) {
	env, err := v1.Reply(v1.TypeError, id, v1.ErrorPayload{Code: code, Message: msg}, time.Now())
	if err != nil {
		return
	}
	if id == "" {
		env.ID = v1.NewID(time.Now())
	}
	h.enqueue(c, env)
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope) error {
	ctx, cancel := context.WithTimeout(parent, hubWriteTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if !strings.HasPrefix(h, common.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, common.BearerPrefix))
}
