package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName
	}
	if id := a.chatService.Active(); id != "" {
		if s != "" {
			s += " "
		}
		s += "chat:" + id
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root greets the user and runs the command loop until exit or EOF.
func (a *App) Root(ctx context.Context) {
	a.println("Welcome to lecom CLI (type 'help' for commands)")
	if st := a.authService.Status(); st.Authenticated {
		a.userName = st.SubjectID
	}
	runREPL(ctx, a, a.getStatus, a.reader)
}
