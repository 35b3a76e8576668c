package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/lecom/internal/client/api"
	"github.com/dmitrijs2005/lecom/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errEmptyUserName = errors.New("user name must not be empty")

// Login prompts for credentials and starts a session.
//
// A rejected login is reported with the backend's message and does not
// wrap ErrUnauthenticated, so the REPL does not mistake it for an expired
// session. The password is wiped before returning.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter user name", a.out)
	if err != nil {
		return err
	}
	if userName == "" {
		return errEmptyUserName
	}

	password, err := getPassword("Password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	st, err := a.authService.Login(ctx, userName, password)
	if err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			msg := api.ServerMessage(err)
			if msg == "" {
				msg = "invalid credentials"
			}
			return fmt.Errorf("login failed: %s", msg)
		}
		return err
	}

	a.userName = userName
	a.logger.Info(ctx, "cli.login", "user_id", st.SubjectID)
	a.println("Login successful")
	return nil
}

// Logout drops the session. The open conversation, if any, is closed first.
func (a *App) Logout(ctx context.Context) error {
	a.chatService.Close()
	a.userName = ""
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.println("Logged out")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st := a.authService.Status()
	if !st.Authenticated {
		a.println("Not logged in")
		return nil
	}
	line := "Logged in as " + st.SubjectID
	if !st.ExpiresAt.IsZero() {
		line += ", access token expires " + st.ExpiresAt.Local().Format("2006-01-02 15:04:05")
		if st.Expired {
			line += " (expired, will refresh on next call)"
		}
	}
	a.println(line)
	if id := a.chatService.Active(); id != "" {
		a.println("Open conversation:", id)
	}
	return nil
}
