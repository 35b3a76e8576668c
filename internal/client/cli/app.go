package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/lecom/internal/client/api"
	"github.com/dmitrijs2005/lecom/internal/client/services"
	"github.com/dmitrijs2005/lecom/internal/logging"
)

// Deps are the services the interactive client runs on.
type Deps struct {
	Auth   services.AuthService
	Chat   services.ChatService
	API    *api.API
	Sender api.Sender
	Logger logging.Logger
}

type App struct {
	authService services.AuthService
	chatService services.ChatService
	api         *api.API
	sender      api.Sender
	logger      logging.Logger

	reader *bufio.Reader

	// out is shared with realtime handlers, which print from their own goroutine.
	outMu sync.Mutex
	out   io.Writer

	userName string
}

func NewApp(d Deps) *App {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	return &App{
		authService: d.Auth,
		chatService: d.Chat,
		api:         d.API,
		sender:      d.Sender,
		logger:      d.Logger,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}
}

// Run starts the REPL and closes the open conversation when it returns.
func (a *App) Run(ctx context.Context) {
	defer a.chatService.Close()
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.authService.Status().Authenticated
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}
