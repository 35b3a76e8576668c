package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/lecom/internal/client/api"
	"github.com/dmitrijs2005/lecom/internal/common"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	Get(ctx context.Context, path string) error
	Conversations(ctx context.Context, asSeller bool) error
	Start(ctx context.Context, productID string) error
	Open(ctx context.Context, conversationID string) error
	Send(ctx context.Context, text string) error
	CloseChat(ctx context.Context) error
	Cart(ctx context.Context, args []string) error
	Orders(ctx context.Context) error
	Profile(ctx context.Context, args []string) error
}

// runREPL reads commands line by line from in and dispatches them to a.
// The loop exits on EOF or when the user types "exit" or "quit".
//
// Handler errors are reported through describeError; the loop keeps going.
// Lines are read from the same reader the handlers prompt on, so prompts
// inside a command see the following input lines.
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("lecom%s> ", statusFn()))
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		line = strings.TrimSpace(line)
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: status, get <path>, conversations [seller], start <productId>, open <id>, send <text>, close, cart, orders, profile, logout, exit")
			} else {
				printlnFn("Available commands: login, status, exit")
			}

		case "login":
			cmdErr = a.Login(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "get":
			if len(args) == 0 {
				printlnFn("Usage: get <path>")
				continue
			}
			cmdErr = a.Get(ctx, args[0])

		case "conversations":
			cmdErr = a.Conversations(ctx, len(args) > 0 && args[0] == "seller")

		case "start":
			if len(args) == 0 {
				printlnFn("Usage: start <productId>")
				continue
			}
			cmdErr = a.Start(ctx, args[0])

		case "open":
			if len(args) == 0 {
				printlnFn("Usage: open <conversationId>")
				continue
			}
			cmdErr = a.Open(ctx, args[0])

		case "send":
			text := strings.TrimSpace(strings.TrimPrefix(line, cmd))
			if text == "" {
				printlnFn("Usage: send <text>")
				continue
			}
			cmdErr = a.Send(ctx, text)

		case "close":
			cmdErr = a.CloseChat(ctx)

		case "cart":
			cmdErr = a.Cart(ctx, args)

		case "orders":
			cmdErr = a.Orders(ctx)

		case "profile":
			cmdErr = a.Profile(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn(describeError(cmdErr))
		}
	}
}

// describeError turns a command failure into the line shown to the user.
func describeError(err error) string {
	switch {
	case errors.Is(err, common.ErrUnauthenticated), errors.Is(err, common.ErrNoRefreshToken):
		return "session expired, please login"
	case errors.Is(err, common.ErrUnavailable):
		return "server unavailable"
	case errors.Is(err, common.ErrForbidden):
		return "access denied"
	}
	if msg := api.ServerMessage(err); msg != "" {
		return "error: " + msg
	}
	return "error: " + err.Error()
}
