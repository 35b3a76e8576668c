package devserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshTokenUnknown = errors.New("refresh token unknown")
)

// Claims are the access token claims. Subject carries the user id too so
// clients can read it without knowing the custom claim.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

func GenerateToken(userID string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			ID:        uuid.NewString(),
		},
		UserID: userID,
	})
	return token.SignedString(secretKey)
}

func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", ErrTokenExpired
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

type refreshToken struct {
	userID  string
	expires time.Time
}

// refreshTokens is the server-side store of opaque refresh tokens. Each
// token is single use: Rotate deletes it and issues a successor.
type refreshTokens struct {
	mu       sync.Mutex
	tokens   map[string]refreshToken
	validity time.Duration
}

func newRefreshTokens(validity time.Duration) *refreshTokens {
	return &refreshTokens{tokens: make(map[string]refreshToken), validity: validity}
}

func (r *refreshTokens) Create(userID string) string {
	tok := uuid.NewString()
	r.mu.Lock()
	r.tokens[tok] = refreshToken{userID: userID, expires: time.Now().Add(r.validity)}
	r.mu.Unlock()
	return tok
}

// Rotate consumes tok, which must belong to userID, and returns a new one.
func (r *refreshTokens) Rotate(tok, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.tokens[tok]
	if !ok || rt.userID != userID {
		return "", ErrRefreshTokenUnknown
	}
	delete(r.tokens, tok)
	if rt.expires.Before(time.Now()) {
		return "", ErrTokenExpired
	}

	next := uuid.NewString()
	r.tokens[next] = refreshToken{userID: userID, expires: time.Now().Add(r.validity)}
	return next, nil
}

func (r *refreshTokens) RevokeAll() {
	r.mu.Lock()
	r.tokens = make(map[string]refreshToken)
	r.mu.Unlock()
}
