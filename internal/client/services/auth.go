// Package services contains application services for the lecom client.
// This file defines the session service: login, logout and status.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/lecom/internal/client/api"
	"github.com/dmitrijs2005/lecom/internal/client/credentials"
	"github.com/dmitrijs2005/lecom/internal/logging"
)

// Authenticator is the login endpoint, *api.Auth in production.
type Authenticator interface {
	Login(ctx context.Context, userName, password string) (api.LoginResult, error)
}

// Closer tears down the realtime session on logout.
type Closer interface {
	Close() error
}

// Status describes the current session as far as the client can tell.
type Status struct {
	Authenticated bool
	SubjectID     string
	// ExpiresAt is the access token expiry, zero when unknown.
	ExpiresAt time.Time
	Expired   bool
}

// AuthService defines session operations for the CLI.
//
// Contract:
//   - Login: authenticate against the backend and persist the token pair.
//   - Logout: drop stored credentials and close the realtime session.
//   - Status: report the stored session without calling the backend.
type AuthService interface {
	Login(ctx context.Context, userName string, password []byte) (Status, error)
	Logout(ctx context.Context) error
	Status() Status
}

type authService struct {
	auth     Authenticator
	store    credentials.Store
	realtime Closer
	logger   logging.Logger
	now      func() time.Time
}

func NewAuthService(auth Authenticator, store credentials.Store, realtime Closer, logger logging.Logger) AuthService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &authService{auth: auth, store: store, realtime: realtime, logger: logger, now: time.Now}
}

func (a *authService) Login(ctx context.Context, userName string, password []byte) (Status, error) {
	res, err := a.auth.Login(ctx, userName, string(password))
	if err != nil {
		return Status{}, fmt.Errorf("login error: %w", err)
	}

	subject := res.UserID
	if subject == "" {
		claims, err := credentials.ParseClaims(res.Token)
		if err != nil {
			return Status{}, fmt.Errorf("login error: %w", err)
		}
		subject = claims.Subject
	}

	cred := credentials.Credential{AccessToken: res.Token, RefreshToken: res.RefreshToken, SubjectID: subject}
	if err := a.store.Set(ctx, cred); err != nil {
		return Status{}, fmt.Errorf("save credential: %w", err)
	}
	a.logger.Info(ctx, "auth.login", "subject_id", subject)
	return a.Status(), nil
}

// Logout always clears the store, even when closing realtime fails.
func (a *authService) Logout(ctx context.Context) error {
	var errs []error
	if err := a.store.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear credential: %w", err))
	}
	if a.realtime != nil {
		if err := a.realtime.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close realtime: %w", err))
		}
	}
	a.logger.Info(ctx, "auth.logout")
	return errors.Join(errs...)
}

func (a *authService) Status() Status {
	cred := a.store.Get()
	if !cred.IsAuthenticated() {
		return Status{}
	}

	st := Status{Authenticated: true, SubjectID: cred.SubjectID}
	if claims, err := credentials.ParseClaims(cred.AccessToken); err == nil {
		st.ExpiresAt = claims.ExpiresAt
		st.Expired = claims.Expired(a.now())
		if st.SubjectID == "" {
			st.SubjectID = claims.Subject
		}
	}
	return st
}
