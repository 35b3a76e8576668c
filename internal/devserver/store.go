package devserver

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrBadCredentials = errors.New("invalid user name or password")
	ErrNoSeller       = errors.New("no seller available")
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

type User struct {
	ID       string
	UserName string
	Password string
	Role     string
	FullName string
	Email    string
}

// DefaultUsers are the accounts a fresh dev server starts with.
func DefaultUsers() []User {
	return []User{
		{ID: "u-buyer", UserName: "buyer", Password: "buyer", Role: RoleBuyer, FullName: "Demo Buyer", Email: "buyer@example.com"},
		{ID: "u-seller", UserName: "seller", Password: "seller", Role: RoleSeller, FullName: "Demo Seller", Email: "seller@example.com"},
	}
}

type Profile struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
}

type Conversation struct {
	ID            string    `json:"id"`
	BuyerID       string    `json:"buyerId"`
	SellerID      string    `json:"sellerId"`
	ProductID     string    `json:"productId"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
}

// store holds the dev server's data in memory. All methods are safe for
// concurrent use.
type store struct {
	mu            sync.Mutex
	users         map[string]*User
	profiles      map[string]*Profile
	conversations map[string]*Conversation
	messages      map[string][]Message
	carts         map[string]map[string]int
	orders        map[string][]Order
}

func newStore(users []User) *store {
	s := &store{
		users:         make(map[string]*User, len(users)),
		profiles:      make(map[string]*Profile, len(users)),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		carts:         make(map[string]map[string]int),
		orders:        make(map[string][]Order),
	}
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
		s.profiles[u.ID] = &Profile{ID: u.ID, UserName: u.UserName, FullName: u.FullName, Email: u.Email}
	}
	return s
}

func (s *store) Authenticate(userName, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.UserName == userName && u.Password == password {
			return u.ID, nil
		}
	}
	return "", ErrBadCredentials
}

// StartChat returns the buyer's conversation about productID, creating it
// with the first seller on record if it does not exist yet.
func (s *store) StartChat(buyerID, productID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conversations {
		if c.BuyerID == buyerID && c.ProductID == productID {
			return *c, nil
		}
	}

	sellerID := ""
	for _, u := range s.sortedUsers() {
		if u.Role == RoleSeller && u.ID != buyerID {
			sellerID = u.ID
			break
		}
	}
	if sellerID == "" {
		return Conversation{}, ErrNoSeller
	}

	c := &Conversation{
		ID:            uuid.NewString(),
		BuyerID:       buyerID,
		SellerID:      sellerID,
		ProductID:     productID,
		LastMessageAt: time.Now().UTC(),
	}
	s.conversations[c.ID] = c
	return *c, nil
}

// CanJoin reports whether userID takes part in conversation convID.
func (s *store) CanJoin(convID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.participant(convID, userID)
	return err
}

func (s *store) AddMessage(convID, senderID, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.participant(convID, senderID)
	if err != nil {
		return Message{}, err
	}

	m := Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[convID] = append(s.messages[convID], m)
	c.LastMessage = content
	c.LastMessageAt = m.CreatedAt
	return m, nil
}

func (s *store) Messages(convID, userID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.participant(convID, userID); err != nil {
		return nil, err
	}
	out := make([]Message, len(s.messages[convID]))
	copy(out, s.messages[convID])
	return out, nil
}

// Conversations lists userID's conversations as buyer or as seller, newest
// activity first.
func (s *store) Conversations(userID string, asSeller bool) []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Conversation{}
	for _, c := range s.conversations {
		if (asSeller && c.SellerID == userID) || (!asSeller && c.BuyerID == userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out
}

func (s *store) Cart(userID string) []CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []CartItem{}
	for id, qty := range s.carts[userID] {
		out = append(out, CartItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// AddToCart adds qty to the product's quantity; SetCartItem replaces it.
func (s *store) AddToCart(userID, productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.carts[userID] == nil {
		s.carts[userID] = make(map[string]int)
	}
	s.carts[userID][productID] += qty
}

func (s *store) SetCartItem(userID, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[userID][productID]; !ok {
		return ErrNotFound
	}
	if qty <= 0 {
		delete(s.carts[userID], productID)
		return nil
	}
	s.carts[userID][productID] = qty
	return nil
}

func (s *store) DeleteCartItem(userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[userID][productID]; !ok {
		return ErrNotFound
	}
	delete(s.carts[userID], productID)
	return nil
}

func (s *store) Orders(userID string) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, len(s.orders[userID]))
	copy(out, s.orders[userID])
	return out
}

func (s *store) AddOrder(userID string, o Order) {
	s.mu.Lock()
	s.orders[userID] = append(s.orders[userID], o)
	s.mu.Unlock()
}

func (s *store) Profile(userID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return *p, nil
}

// ProfileUpdate holds the editable profile fields. Nil fields are left
// untouched.
type ProfileUpdate struct {
	FullName    *string `json:"fullName"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
	Address     *string `json:"address"`
}

func (s *store) UpdateProfile(userID string, u ProfileUpdate) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.PhoneNumber != nil {
		p.PhoneNumber = *u.PhoneNumber
	}
	if u.Address != nil {
		p.Address = *u.Address
	}
	return *p, nil
}

func (s *store) ChangePassword(userID, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.Password != oldPassword {
		return ErrBadCredentials
	}
	u.Password = newPassword
	return nil
}

func (s *store) participant(convID, userID string) (*Conversation, error) {
	c, ok := s.conversations[convID]
	if !ok {
		return nil, ErrNotFound
	}
	if c.BuyerID != userID && c.SellerID != userID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *store) sortedUsers() []*User {
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
