package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/lecom/internal/client/client"
	"github.com/dmitrijs2005/lecom/internal/common"
)

var errNoOpenChat = errors.New("no open conversation, use 'open <id>' first")

// Get issues an authenticated GET and prints the raw response body.
func (a *App) Get(ctx context.Context, path string) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	resp, err := a.sender.Send(ctx, &client.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	a.printJSON(resp.Body)
	return nil
}

func (a *App) Conversations(ctx context.Context, asSeller bool) error {
	res, err := a.chatService.Conversations(ctx, asSeller)
	if err != nil {
		return err
	}
	a.printJSON(res)
	return nil
}

// Start opens (or reuses) a chat with the seller of productID and prints it.
func (a *App) Start(ctx context.Context, productID string) error {
	res, err := a.chatService.Start(ctx, productID)
	if err != nil {
		return err
	}
	a.printJSON(res)
	return nil
}

// Open joins the conversation's live stream and prints its history.
func (a *App) Open(ctx context.Context, conversationID string) error {
	if err := a.chatService.Open(ctx, conversationID, a.printIncoming); err != nil {
		return err
	}
	a.println("Joined conversation", conversationID)

	history, err := a.chatService.History(ctx, conversationID)
	if err != nil {
		return err
	}
	var msgs []chatMessage
	if json.Unmarshal(history, &msgs) == nil {
		for _, m := range msgs {
			a.println(m.line())
		}
	}
	return nil
}

func (a *App) Send(ctx context.Context, text string) error {
	id := a.chatService.Active()
	if id == "" {
		return errNoOpenChat
	}
	_, err := a.chatService.Send(ctx, id, text)
	return err
}

func (a *App) CloseChat(ctx context.Context) error {
	if a.chatService.Active() == "" {
		return errNoOpenChat
	}
	a.chatService.Close()
	a.println("Conversation closed")
	return nil
}

// Cart shows the cart or, with add, set and rm, modifies it.
func (a *App) Cart(ctx context.Context, args []string) error {
	var (
		res json.RawMessage
		err error
	)
	switch {
	case len(args) == 0:
		res, err = a.api.Cart.Get(ctx)
	case args[0] == "add" && len(args) == 3:
		qty, convErr := strconv.Atoi(args[2])
		if convErr != nil || qty <= 0 {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		res, err = a.api.Cart.AddItem(ctx, args[1], qty)
	case args[0] == "set" && len(args) == 3:
		qty, convErr := strconv.Atoi(args[2])
		if convErr != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		res, err = a.api.Cart.UpdateItem(ctx, args[1], json.RawMessage(fmt.Sprintf(`{"quantity":%d}`, qty)))
	case args[0] == "rm" && len(args) == 2:
		res, err = a.api.Cart.DeleteItem(ctx, args[1])
	default:
		printlnFn("Usage: cart [add <productId> <qty> | set <productId> <qty> | rm <productId>]")
		return nil
	}
	if err != nil {
		return err
	}
	a.printJSON(res)
	return nil
}

func (a *App) Orders(ctx context.Context) error {
	res, err := a.api.Orders.Mine(ctx)
	if err != nil {
		return err
	}
	a.printJSON(res)
	return nil
}

// Profile shows the profile. "set" updates it from a JSON object read from
// the rest of the line or, when absent, from multiline input. "password"
// changes the password.
func (a *App) Profile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		res, err := a.api.Profile.Get(ctx)
		if err != nil {
			return err
		}
		a.printJSON(res)
		return nil
	}

	switch args[0] {
	case "set":
		text := strings.Join(args[1:], " ")
		if text == "" {
			var err error
			text, err = getMultiline(a.reader, "Enter profile fields as JSON", a.out)
			if err != nil {
				return err
			}
		}
		if !json.Valid([]byte(text)) {
			return errors.New("profile fields must be a JSON object")
		}
		res, err := a.api.Profile.Update(ctx, json.RawMessage(text))
		if err != nil {
			return err
		}
		a.printJSON(res)
		return nil

	case "password":
		oldPw, err := getPassword("Current password", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(oldPw)
		newPw, err := getPassword("New password", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(newPw)
		if err := a.api.Profile.ChangePassword(ctx, string(oldPw), string(newPw)); err != nil {
			return err
		}
		a.println("Password changed")
		return nil
	}

	printlnFn("Usage: profile [set <json> | password]")
	return nil
}

var getMultiline = GetMultiline

type chatMessage struct {
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

func (m chatMessage) line() string {
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt, m.SenderID, m.Content)
}

// printIncoming renders a pushed chat message. Unknown shapes are printed raw.
func (a *App) printIncoming(payload json.RawMessage) {
	var m chatMessage
	if err := json.Unmarshal(payload, &m); err != nil || m.Content == "" {
		a.println(string(payload))
		return
	}
	a.println(m.line())
}

func (a *App) printJSON(raw []byte) {
	if len(raw) == 0 {
		a.println("(empty)")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		a.println(string(raw))
		return
	}
	a.println(buf.String())
}
