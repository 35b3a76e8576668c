package devserver

import "time"

// The methods below let tests and local tooling steer the server.

// IssueToken mints an access token with the given validity plus a fresh
// refresh token for userID, as login would.
func (s *Server) IssueToken(userID string, validity time.Duration) (access, refresh string, err error) {
	access, err = GenerateToken(userID, s.cfg.SigningKey, validity)
	if err != nil {
		return "", "", err
	}
	return access, s.refresh.Create(userID), nil
}

// RefreshCalls counts requests to the refresh endpoint, accepted or not.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// RevokeRefreshTokens invalidates every outstanding refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.refresh.RevokeAll()
}

func (s *Server) Joins(convID string) int {
	return s.hub.Joins(convID)
}

func (s *Server) Publish(convID string, message any) error {
	return s.hub.Publish(convID, message)
}

// DropRealtime kills every websocket session without a close handshake.
func (s *Server) DropRealtime() {
	s.hub.DropAll()
}

func (s *Server) RealtimeSessions() int {
	return s.hub.Sessions()
}

// StartChat opens (or returns) buyerID's conversation about productID.
func (s *Server) StartChat(buyerID, productID string) (Conversation, error) {
	return s.store.StartChat(buyerID, productID)
}

// AddOrder records an order for userID.
func (s *Server) AddOrder(userID string, o Order) {
	s.store.AddOrder(userID, o)
}
