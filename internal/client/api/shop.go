package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

type Cart struct {
	s Sender
}

func (c *Cart) Get(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, c.s, "/cart/")
}

func (c *Cart) AddItem(ctx context.Context, productID string, quantity int) (json.RawMessage, error) {
	body := struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}{productID, quantity}
	return call(ctx, c.s, http.MethodPost, "/cart/items", body, false)
}

// UpdateItem patches a cart line with a caller-supplied JSON body.
func (c *Cart) UpdateItem(ctx context.Context, productID string, patch json.RawMessage) (json.RawMessage, error) {
	return call(ctx, c.s, http.MethodPatch, "/cart/items/"+url.PathEscape(productID), patch, false)
}

func (c *Cart) DeleteItem(ctx context.Context, productID string) (json.RawMessage, error) {
	return call(ctx, c.s, http.MethodDelete, "/cart/items/"+url.PathEscape(productID), nil, false)
}

type Orders struct {
	s Sender
}

func (o *Orders) Mine(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, o.s, "/orders/my")
}

type Profile struct {
	s Sender
}

func (p *Profile) Get(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, p.s, "/user/profile")
}

func (p *Profile) Update(ctx context.Context, fields json.RawMessage) (json.RawMessage, error) {
	return call(ctx, p.s, http.MethodPut, "/user/profile", fields, false)
}

func (p *Profile) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"oldPassword": oldPassword, "newPassword": newPassword}
	_, err := call(ctx, p.s, http.MethodPost, "/user/change-password", body, false)
	return err
}
