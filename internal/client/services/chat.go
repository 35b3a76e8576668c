package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/lecom/internal/client/realtime"
	"github.com/dmitrijs2005/lecom/internal/logging"
)

// ChatAPI is the chat REST surface, *api.Chat in production.
type ChatAPI interface {
	StartSellerChat(ctx context.Context, productID string) (json.RawMessage, error)
	SendMessage(ctx context.Context, conversationID, content string) (json.RawMessage, error)
	UserConversations(ctx context.Context) (json.RawMessage, error)
	SellerConversations(ctx context.Context) (json.RawMessage, error)
	Messages(ctx context.Context, conversationID string) (json.RawMessage, error)
}

// Realtime is the session manager surface the chat service needs.
type Realtime interface {
	Connect(ctx context.Context, topic string) error
	OnMessage(h realtime.MessageHandler)
	OffMessage()
}

// ChatService pairs the chat REST calls with the live message stream of
// the conversation that is currently open.
type ChatService interface {
	Open(ctx context.Context, conversationID string, handler realtime.MessageHandler) error
	Close()
	Active() string
	Start(ctx context.Context, productID string) (json.RawMessage, error)
	Send(ctx context.Context, conversationID, content string) (json.RawMessage, error)
	History(ctx context.Context, conversationID string) (json.RawMessage, error)
	Conversations(ctx context.Context, asSeller bool) (json.RawMessage, error)
}

type chatService struct {
	api    ChatAPI
	rt     Realtime
	logger logging.Logger

	mu     sync.Mutex
	active string
}

func NewChatService(chat ChatAPI, rt Realtime, logger logging.Logger) ChatService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &chatService{api: chat, rt: rt, logger: logger}
}

// Open subscribes to conversationID and routes its messages to handler.
// The handler replaces any previous one and is installed before the join
// so nothing pushed right after the echo is lost.
func (c *chatService) Open(ctx context.Context, conversationID string, handler realtime.MessageHandler) error {
	c.rt.OnMessage(handler)
	if err := c.rt.Connect(ctx, conversationID); err != nil {
		c.rt.OffMessage()
		c.setActive("")
		return err
	}
	c.setActive(conversationID)
	c.logger.Debug(ctx, "chat.open", "conversation_id", conversationID)
	return nil
}

// Close stops message delivery. The realtime session itself stays up.
func (c *chatService) Close() {
	c.rt.OffMessage()
	c.setActive("")
}

func (c *chatService) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *chatService) setActive(id string) {
	c.mu.Lock()
	c.active = id
	c.mu.Unlock()
}

func (c *chatService) Start(ctx context.Context, productID string) (json.RawMessage, error) {
	return c.api.StartSellerChat(ctx, productID)
}

func (c *chatService) Send(ctx context.Context, conversationID, content string) (json.RawMessage, error) {
	return c.api.SendMessage(ctx, conversationID, content)
}

func (c *chatService) History(ctx context.Context, conversationID string) (json.RawMessage, error) {
	return c.api.Messages(ctx, conversationID)
}

func (c *chatService) Conversations(ctx context.Context, asSeller bool) (json.RawMessage, error) {
	if asSeller {
		return c.api.SellerConversations(ctx)
	}
	return c.api.UserConversations(ctx)
}
