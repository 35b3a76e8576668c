package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/lecom/internal/common"
)

type LoginResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

type Auth struct {
	s Sender
}

// Login exchanges user credentials for a token pair. It is sent without a
// bearer token, so a 401 here never triggers a refresh.
func (a *Auth) Login(ctx context.Context, userName, password string) (LoginResult, error) {
	body := map[string]string{"userName": userName, "password": password}

	raw, err := call(ctx, a.s, http.MethodPost, "/auth/login", body, true)
	if err != nil {
		return LoginResult{}, err
	}

	var res LoginResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return LoginResult{}, fmt.Errorf("decode login result: %w", err)
	}
	if res.Token == "" || res.RefreshToken == "" {
		return LoginResult{}, fmt.Errorf("%w: login returned no tokens", common.ErrRequestFailed)
	}
	return res, nil
}
