package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/lecom/internal/logging"
)

const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour

	maxBodyBytes = 1 << 20
)

type Config struct {
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Users defaults to DefaultUsers.
	Users  []User
	Logger logging.Logger
}

// Server is an in-memory backend speaking the REST and realtime contracts
// the client expects. It is meant for local runs and tests.
type Server struct {
	cfg     Config
	log     logging.Logger
	store   *store
	refresh *refreshTokens
	hub     *Hub
	router  *mux.Router

	refreshCalls atomic.Int64
}

func New(cfg Config) (*Server, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("devserver: signing key is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Users == nil {
		cfg.Users = DefaultUsers()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "devserver"),
		store:   newStore(cfg.Users),
		refresh: newRefreshTokens(cfg.RefreshTTL),
	}
	s.hub = newHub(cfg.Logger, s.store, s.verifyAccessToken)
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	r.Handle("/hubs/chat", s.hub)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)

	p := api.NewRoute().Subrouter()
	p.Use(s.authMiddleware)

	p.HandleFunc("/chat/seller/start", s.handleStartChat).Methods(http.MethodPost)
	p.HandleFunc("/chat/user", s.handleConversations(false)).Methods(http.MethodGet)
	p.HandleFunc("/chat/seller", s.handleConversations(true)).Methods(http.MethodGet)
	p.HandleFunc("/chat/{id}/message", s.handleSendMessage).Methods(http.MethodPost)
	p.HandleFunc("/chat/{id}/messages", s.handleMessages).Methods(http.MethodGet)

	p.HandleFunc("/cart", s.handleGetCart).Methods(http.MethodGet)
	p.HandleFunc("/cart/", s.handleGetCart).Methods(http.MethodGet)
	p.HandleFunc("/cart/items", s.handleAddCartItem).Methods(http.MethodPost)
	p.HandleFunc("/cart/items/{id}", s.handleUpdateCartItem).Methods(http.MethodPatch)
	p.HandleFunc("/cart/items/{id}", s.handleDeleteCartItem).Methods(http.MethodDelete)

	p.HandleFunc("/orders/my", s.handleOrders).Methods(http.MethodGet)

	p.HandleFunc("/user/profile", s.handleGetProfile).Methods(http.MethodGet)
	p.HandleFunc("/user/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	p.HandleFunc("/user/change-password", s.handleChangePassword).Methods(http.MethodPost)

	return r
}

// ---- envelope ----

type apiResponse struct {
	IsSuccess     bool     `json:"isSuccess"`
	StatusCode    int      `json:"statusCode"`
	Message       string   `json:"message,omitempty"`
	ErrorMessages []string `json:"errorMessages,omitempty"`
	Result        any      `json:"result"`
}

func writeResult(w http.ResponseWriter, status int, result any) {
	writeJSON(w, status, apiResponse{IsSuccess: true, StatusCode: status, Result: result})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{StatusCode: status, Message: msg, ErrorMessages: []string{msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrBadCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoSeller):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ---- auth ----

type userIDKey struct{}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

func (s *Server) verifyAccessToken(token string) (string, error) {
	return GetUserIDFromToken(token, s.cfg.SigningKey)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.verifyAccessToken(bearerToken(r))
		if err != nil {
			msg := "unauthorized"
			if errors.Is(err, ErrTokenExpired) {
				msg = "token expired"
			}
			s.log.Debug(r.Context(), "auth.reject", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type tokenResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := s.store.Authenticate(req.UserName, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	access, refresh, err := s.IssueToken(userID, s.cfg.AccessTTL)
	if err != nil {
		s.log.Error(r.Context(), "auth.login.fail", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.log.Info(r.Context(), "auth.login", "user_id", userID)
	writeResult(w, http.StatusOK, tokenResult{Token: access, RefreshToken: refresh, UserID: userID})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "refreshToken and userId are required")
		return
	}

	next, err := s.refresh.Rotate(req.RefreshToken, req.UserID)
	if err != nil {
		s.log.Info(r.Context(), "auth.refresh.reject", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	access, err := GenerateToken(req.UserID, s.cfg.SigningKey, s.cfg.AccessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.log.Debug(r.Context(), "auth.refresh", "user_id", req.UserID)
	writeResult(w, http.StatusOK, tokenResult{Token: access, RefreshToken: next})
}

// ---- chat ----

type startChatRequest struct {
	ProductID string `json:"productId"`
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	var req startChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	c, err := s.store.StartChat(userIDFrom(r.Context()), req.ProductID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeResult(w, http.StatusOK, c)
}

func (s *Server) handleConversations(asSeller bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusOK, s.store.Conversations(userIDFrom(r.Context()), asSeller))
	}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	convID := mux.Vars(r)["id"]
	m, err := s.store.AddMessage(convID, userIDFrom(r.Context()), req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.hub.Publish(convID, m); err != nil {
		s.log.Warn(r.Context(), "chat.publish.fail", "conversation_id", convID, "error", err)
	}
	writeResult(w, http.StatusOK, m)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.Messages(mux.Vars(r)["id"], userIDFrom(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeResult(w, http.StatusOK, msgs)
}

// ---- cart / orders ----

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, map[string]any{"items": s.store.Cart(userIDFrom(r.Context()))})
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProductID == "" || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "productId and a positive quantity are required")
		return
	}
	s.store.AddToCart(userIDFrom(r.Context()), req.ProductID, req.Quantity)
	writeResult(w, http.StatusOK, nil)
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SetCartItem(userIDFrom(r.Context()), mux.Vars(r)["id"], req.Quantity); err != nil {
		writeStoreError(w, err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteCartItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCartItem(userIDFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, s.store.Orders(userIDFrom(r.Context())))
}

// ---- profile ----

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Profile(userIDFrom(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeResult(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileUpdate
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.store.UpdateProfile(userIDFrom(r.Context()), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeResult(w, http.StatusOK, p)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "newPassword is required")
		return
	}
	if err := s.store.ChangePassword(userIDFrom(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		writeStoreError(w, err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}
