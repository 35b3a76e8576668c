package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/lecom/internal/common"
)

// HTTPRefresher calls the backend refresh endpoint. The request is not
// authenticated; the refresh token is the proof.
type HTTPRefresher struct {
	url    string
	client *http.Client
}

func NewHTTPRefresher(url string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPRefresher{url: url, client: client}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

type tokenBody struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse accepts both {"result": {...}} and a bare token body.
type refreshResponse struct {
	tokenBody
	Result *tokenBody `json:"result"`
}

func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken, subjectID string) (TokenPair, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken, UserID: subjectID})
	if err != nil {
		return TokenPair{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenPair{}, fmt.Errorf("%w: status %d", common.ErrRefreshRejected, resp.StatusCode)
	}

	var rr refreshResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return TokenPair{}, fmt.Errorf("%w: decode: %w", common.ErrRefreshRejected, err)
	}

	tb := rr.tokenBody
	if rr.Result != nil {
		tb = *rr.Result
	}
	if tb.Token == "" || tb.RefreshToken == "" {
		return TokenPair{}, fmt.Errorf("%w: missing token in response", common.ErrRefreshRejected)
	}

	return TokenPair{AccessToken: tb.Token, RefreshToken: tb.RefreshToken}, nil
}
