package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/lecom/internal/client/client"
	"github.com/dmitrijs2005/lecom/internal/common"
)

type fakeSender struct {
	reqs []*client.Request
	resp *client.Response
	err  error
}

func (f *fakeSender) Send(_ context.Context, req *client.Request) (*client.Response, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func ok(result string) *client.Response {
	return &client.Response{StatusCode: http.StatusOK, Body: []byte(`{"isSuccess":true,"statusCode":200,"result":` + result + `}`)}
}

func TestEndpoints(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func(a *API) error
		method string
		path   string
		body   string
	}{
		{"start chat", func(a *API) error { _, err := a.Chat.StartSellerChat(ctx, "p-1"); return err },
			http.MethodPost, "/chat/seller/start", `{"productId":"p-1"}`},
		{"send message", func(a *API) error { _, err := a.Chat.SendMessage(ctx, "c/1", "hi"); return err },
			http.MethodPost, "/chat/c%2F1/message", `{"content":"hi"}`},
		{"user conversations", func(a *API) error { _, err := a.Chat.UserConversations(ctx); return err },
			http.MethodGet, "/chat/user", ""},
		{"seller conversations", func(a *API) error { _, err := a.Chat.SellerConversations(ctx); return err },
			http.MethodGet, "/chat/seller", ""},
		{"messages", func(a *API) error { _, err := a.Chat.Messages(ctx, "c1"); return err },
			http.MethodGet, "/chat/c1/messages", ""},
		{"cart", func(a *API) error { _, err := a.Cart.Get(ctx); return err },
			http.MethodGet, "/cart/", ""},
		{"add item", func(a *API) error { _, err := a.Cart.AddItem(ctx, "p-1", 2); return err },
			http.MethodPost, "/cart/items", `{"productId":"p-1","quantity":2}`},
		{"update item", func(a *API) error {
			_, err := a.Cart.UpdateItem(ctx, "p-1", json.RawMessage(`{"quantity":3}`))
			return err
		}, http.MethodPatch, "/cart/items/p-1", `{"quantity":3}`},
		{"delete item", func(a *API) error { _, err := a.Cart.DeleteItem(ctx, "p-1"); return err },
			http.MethodDelete, "/cart/items/p-1", ""},
		{"orders", func(a *API) error { _, err := a.Orders.Mine(ctx); return err },
			http.MethodGet, "/orders/my", ""},
		{"profile", func(a *API) error { _, err := a.Profile.Get(ctx); return err },
			http.MethodGet, "/user/profile", ""},
		{"update profile", func(a *API) error {
			_, err := a.Profile.Update(ctx, json.RawMessage(`{"fullName":"X"}`))
			return err
		}, http.MethodPut, "/user/profile", `{"fullName":"X"}`},
		{"change password", func(a *API) error { return a.Profile.ChangePassword(ctx, "a", "b") },
			http.MethodPost, "/user/change-password", `{"newPassword":"b","oldPassword":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{resp: ok(`null`)}
			require.NoError(t, tt.call(New(s)))

			require.Len(t, s.reqs, 1)
			req := s.reqs[0]
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.path, req.Path)
			assert.False(t, req.SkipAuth)
			if tt.body == "" {
				assert.Empty(t, req.Body)
			} else {
				assert.JSONEq(t, tt.body, string(req.Body))
			}
		})
	}
}

func TestCall_ReturnsResult(t *testing.T) {
	s := &fakeSender{resp: ok(`[{"id":"c1"}]`)}

	got, err := New(s).Chat.UserConversations(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"c1"}]`, string(got))
}

func TestCall_Errors(t *testing.T) {
	ctx := context.Background()
	sendErr := errors.New("boom")

	tests := []struct {
		name string
		s    *fakeSender
		is   error
	}{
		{"transport error passes through", &fakeSender{err: sendErr}, sendErr},
		{"isSuccess false", &fakeSender{resp: &client.Response{StatusCode: 200, Body: []byte(`{"isSuccess":false,"message":"nope"}`)}}, common.ErrRequestFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.s).Orders.Mine(ctx)
			require.ErrorIs(t, err, tt.is)
		})
	}

	_, err := New(&fakeSender{resp: &client.Response{StatusCode: 200, Body: []byte(`<html>`)}}).Orders.Mine(ctx)
	require.ErrorContains(t, err, "decode GET /orders/my")
}

func TestCall_EmptyBody(t *testing.T) {
	got, err := New(&fakeSender{resp: &client.Response{StatusCode: http.StatusNoContent}}).Cart.DeleteItem(context.Background(), "p")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	s := &fakeSender{resp: ok(`{"token":"A","refreshToken":"R","userId":"u1"}`)}
	res, err := New(s).Auth.Login(ctx, "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, LoginResult{Token: "A", RefreshToken: "R", UserID: "u1"}, res)

	require.Len(t, s.reqs, 1)
	assert.True(t, s.reqs[0].SkipAuth)
	assert.Equal(t, "/auth/login", s.reqs[0].Path)
	assert.JSONEq(t, `{"userName":"bob","password":"pw"}`, string(s.reqs[0].Body))

	_, err = New(&fakeSender{resp: ok(`{"token":"A"}`)}).Auth.Login(ctx, "bob", "pw")
	require.ErrorIs(t, err, common.ErrRequestFailed)
}

func TestServerMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"message", &client.StatusError{StatusCode: 400, Body: []byte(`{"message":"bad quantity"}`)}, "bad quantity"},
		{"error list", &client.StatusError{StatusCode: 400, Body: []byte(`{"errorMessages":["a","b"]}`)}, "a; b"},
		{"not json", &client.StatusError{StatusCode: 502, Body: []byte(`bad gateway`)}, ""},
		{"other error", errors.New("x"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ServerMessage(tt.err))
		})
	}
}
