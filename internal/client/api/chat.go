package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

type Chat struct {
	s Sender
}

// StartSellerChat opens a buyer to seller conversation about productID.
func (c *Chat) StartSellerChat(ctx context.Context, productID string) (json.RawMessage, error) {
	return call(ctx, c.s, http.MethodPost, "/chat/seller/start", map[string]string{"productId": productID}, false)
}

func (c *Chat) SendMessage(ctx context.Context, conversationID, content string) (json.RawMessage, error) {
	return call(ctx, c.s, http.MethodPost, "/chat/"+url.PathEscape(conversationID)+"/message", map[string]string{"content": content}, false)
}

func (c *Chat) UserConversations(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, c.s, "/chat/user")
}

func (c *Chat) SellerConversations(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, c.s, "/chat/seller")
}

func (c *Chat) Messages(ctx context.Context, conversationID string) (json.RawMessage, error) {
	return get(ctx, c.s, "/chat/"+url.PathEscape(conversationID)+"/messages")
}
