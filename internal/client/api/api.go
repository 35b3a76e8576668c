// Package api holds thin request builders for the lecom backend. Every call
// goes through a Sender, normally the authenticated client.Pipeline, and
// returns the envelope's result as raw JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/lecom/internal/client/client"
	"github.com/dmitrijs2005/lecom/internal/common"
)

type Sender interface {
	Send(ctx context.Context, req *client.Request) (*client.Response, error)
}

// Envelope is the backend response wrapper.
type Envelope struct {
	IsSuccess     *bool           `json:"isSuccess,omitempty"`
	StatusCode    int             `json:"statusCode,omitempty"`
	Message       string          `json:"message,omitempty"`
	ErrorMessages []string        `json:"errorMessages,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

func (e Envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return strings.Join(e.ErrorMessages, "; ")
}

type API struct {
	Auth    *Auth
	Chat    *Chat
	Cart    *Cart
	Orders  *Orders
	Profile *Profile
}

func New(s Sender) *API {
	return &API{
		Auth:    &Auth{s: s},
		Chat:    &Chat{s: s},
		Cart:    &Cart{s: s},
		Orders:  &Orders{s: s},
		Profile: &Profile{s: s},
	}
}

// ServerMessage returns the backend's message for a failed call, or "" when
// err carries none.
func ServerMessage(err error) string {
	var se *client.StatusError
	if !errors.As(err, &se) || len(se.Body) == 0 {
		return ""
	}
	var env Envelope
	if json.Unmarshal(se.Body, &env) != nil {
		return ""
	}
	return env.text()
}

// call sends one request and unwraps the envelope. body may be nil, a
// json.RawMessage passed through untouched, or any value to marshal.
func call(ctx context.Context, s Sender, method, path string, body any, skipAuth bool) (json.RawMessage, error) {
	req := &client.Request{Method: method, Path: path, SkipAuth: skipAuth}

	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		req.Body = b
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.Body = raw
	}

	resp, err := s.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}

	var env Envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if env.IsSuccess != nil && !*env.IsSuccess {
		return nil, fmt.Errorf("%s %s: %w: %s", method, path, common.ErrRequestFailed, env.text())
	}
	return env.Result, nil
}

func get(ctx context.Context, s Sender, path string) (json.RawMessage, error) {
	return call(ctx, s, http.MethodGet, path, nil, false)
}
