// Package credentials holds the session credential and the stores that own
// it. A store is the single source of truth for "am I logged in": it is read
// by every request and written only by login, logout and the refresh
// coordinator.
package credentials

import (
	"context"
	"log/slog"

	"github.com/dmitrijs2005/lecom/internal/common"
)

// Credential is the access/refresh token pair plus the subject it belongs
// to. The zero value means logged out.
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	SubjectID    string `json:"subjectId"`
}

func (c Credential) IsAuthenticated() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Validate rejects credentials with only one token present. Both tokens are
// required for Set; logout goes through Clear.
func (c Credential) Validate() error {
	if c.AccessToken == "" || c.RefreshToken == "" {
		return common.ErrPartialCredential
	}
	return nil
}

// LogValue keeps tokens out of logs.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("subject_id", c.SubjectID),
		slog.Bool("authenticated", c.IsAuthenticated()),
	)
}

type Store interface {
	// Get returns a snapshot. Never partially written.
	Get() Credential
	// Set replaces the credential. On error the store is unchanged.
	Set(ctx context.Context, c Credential) error
	// Clear logs out. Afterwards Get returns the zero value even if the
	// returned error is non-nil.
	Clear(ctx context.Context) error
}
