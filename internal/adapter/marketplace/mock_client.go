package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

// MockClient is an in-memory marketplace backend for demos and tests.
type MockClient struct {
	mu            sync.Mutex
	now           func() time.Time
	users         map[string]*mockUser
	tokens        map[string]string
	conversations map[string]*mockConversation
}

type mockUser struct {
	profile  domain.UserProfile
	password string
}

type mockConversation struct {
	id           string
	participants [2]string
	messages     []domain.Message
	updatedAt    time.Time
}

// NewMockClient creates an empty mock backend.
func NewMockClient() *MockClient {
	return &MockClient{
		now:           time.Now,
		users:         make(map[string]*mockUser),
		tokens:        make(map[string]string),
		conversations: make(map[string]*mockConversation),
	}
}

// SeedUser registers an account and returns its profile.
func (m *MockClient) SeedUser(fullName, email, password string, roles ...string) domain.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addUser(fullName, email, "", password, roles)
}

// IssueToken returns a fresh token for userID.
func (m *MockClient) IssueToken(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issue(userID)
}

// RevokeToken invalidates a token, as a server-side expiry would.
func (m *MockClient) RevokeToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
}

// GetProfile returns the user behind token.
func (m *MockClient) GetProfile(ctx context.Context, token string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.authenticate("get_profile", token)
	if err != nil {
		return nil, err
	}
	return cloneProfile(user.profile), nil
}

// Login checks the credentials and issues a token.
func (m *MockClient) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.profile.Email, email) && u.password == password {
			return &domain.AuthResult{Token: m.issue(u.profile.ID), User: cloneProfile(u.profile)}, nil
		}
	}
	return nil, &domain.Error{Kind: domain.ErrAuth, Op: "login", Status: http.StatusUnauthorized, Message: "Incorrect email or password"}
}

// Signup registers an account and issues a token.
func (m *MockClient) Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: "signup", Status: http.StatusUnprocessableEntity, Message: "email and password are required"}
	}
	for _, u := range m.users {
		if strings.EqualFold(u.profile.Email, req.Email) {
			return nil, &domain.Error{Kind: domain.ErrValidation, Op: "signup", Status: http.StatusBadRequest, Message: "Email already registered"}
		}
	}
	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{domain.RoleTrainee}
	}
	profile := m.addUser(req.FullName, req.Email, req.Phone, req.Password, roles)
	return &domain.AuthResult{Token: m.issue(profile.ID), User: cloneProfile(profile)}, nil
}

// DeleteAccount removes the user and every token issued to it.
func (m *MockClient) DeleteAccount(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.authenticate("delete_account", token)
	if err != nil {
		return err
	}
	for t, id := range m.tokens {
		if id == user.profile.ID {
			delete(m.tokens, t)
		}
	}
	delete(m.users, user.profile.ID)
	return nil
}

// ListConversations returns the caller's conversations, most recently updated first.
func (m *MockClient) ListConversations(ctx context.Context, token string) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.authenticate("list_conversations", token)
	if err != nil {
		return nil, err
	}
	self := user.profile.ID

	out := make([]domain.Conversation, 0)
	for _, c := range m.conversations {
		if c.participants[0] != self && c.participants[1] != self {
			continue
		}
		conv := domain.Conversation{ID: c.id, UpdatedAt: c.updatedAt}
		for _, id := range c.participants {
			if u, ok := m.users[id]; ok {
				conv.Participants = append(conv.Participants, domain.UserSummary{ID: id, FullName: u.profile.FullName})
			}
		}
		for _, msg := range c.messages {
			if msg.ReceiverID == self && !msg.IsRead {
				conv.UnreadCount++
			}
		}
		if n := len(c.messages); n > 0 {
			last := c.messages[n-1]
			conv.LastMessage = &last
		}
		out = append(out, conv)
	}
	slices.SortFunc(out, func(a, b domain.Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// OpenConversation returns the conversation between the caller and receiverID,
// creating it on first use.
func (m *MockClient) OpenConversation(ctx context.Context, token, receiverID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.authenticate("open_conversation", token)
	if err != nil {
		return "", err
	}
	conv, err := m.conversationWith("open_conversation", user.profile.ID, receiverID)
	if err != nil {
		return "", err
	}
	return conv.id, nil
}

// ListMessages returns the thread oldest first and marks the caller's
// incoming messages as read.
func (m *MockClient) ListMessages(ctx context.Context, token, conversationID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.authenticate("list_messages", token)
	if err != nil {
		return nil, err
	}
	conv, err := m.member("list_messages", user.profile.ID, conversationID)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(conv.messages)
	for i := range conv.messages {
		if conv.messages[i].ReceiverID == user.profile.ID {
			conv.messages[i].IsRead = true
		}
	}
	return out, nil
}

// CreateMessage appends a message to the conversation.
func (m *MockClient) CreateMessage(ctx context.Context, token string, req domain.CreateMessageRequest) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.authenticate("create_message", token)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: "create_message", Status: http.StatusUnprocessableEntity, Message: "content must not be empty"}
	}

	var conv *mockConversation
	if req.ConversationID != "" {
		conv, err = m.member("create_message", user.profile.ID, req.ConversationID)
	} else {
		conv, err = m.conversationWith("create_message", user.profile.ID, req.ReceiverID)
	}
	if err != nil {
		return nil, err
	}

	receiver := conv.participants[0]
	if receiver == user.profile.ID {
		receiver = conv.participants[1]
	}
	now := m.now().UTC()
	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.id,
		SenderID:       user.profile.ID,
		ReceiverID:     receiver,
		Content:        content,
		CreatedAt:      now,
		DeliveryState:  domain.DeliveryStateConfirmed,
	}
	conv.messages = append(conv.messages, msg)
	conv.updatedAt = now
	return &msg, nil
}

func (m *MockClient) addUser(fullName, email, phone, password string, roles []string) domain.UserProfile {
	profile := domain.UserProfile{
		ID:        uuid.NewString(),
		FullName:  fullName,
		Email:     email,
		Phone:     phone,
		Roles:     slices.Clone(roles),
		IsAdmin:   slices.Contains(roles, domain.RoleAdmin),
		CreatedAt: m.now().UTC(),
	}
	m.users[profile.ID] = &mockUser{profile: profile, password: password}
	return profile
}

func (m *MockClient) issue(userID string) string {
	token := "mock_" + uuid.NewString()
	m.tokens[token] = userID
	return token
}

func (m *MockClient) authenticate(op, token string) (*mockUser, error) {
	id, ok := m.tokens[token]
	if !ok || token == "" {
		return nil, &domain.Error{Kind: domain.ErrAuth, Op: op, Status: http.StatusUnauthorized, Message: "Could not validate credentials"}
	}
	user, ok := m.users[id]
	if !ok {
		return nil, &domain.Error{Kind: domain.ErrAuth, Op: op, Status: http.StatusUnauthorized, Message: "User not found"}
	}
	return user, nil
}

func (m *MockClient) member(op, userID, conversationID string) (*mockConversation, error) {
	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, &domain.Error{Kind: domain.ErrServer, Op: op, Status: http.StatusNotFound, Message: "Conversation not found"}
	}
	if conv.participants[0] != userID && conv.participants[1] != userID {
		return nil, &domain.Error{Kind: domain.ErrAuth, Op: op, Status: http.StatusForbidden, Message: "Not a participant"}
	}
	return conv, nil
}

func (m *MockClient) conversationWith(op, self, other string) (*mockConversation, error) {
	if other == "" || other == self {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: op, Status: http.StatusBadRequest, Message: "invalid receiver"}
	}
	if _, ok := m.users[other]; !ok {
		return nil, &domain.Error{Kind: domain.ErrServer, Op: op, Status: http.StatusNotFound, Message: fmt.Sprintf("user %s not found", other)}
	}
	for _, c := range m.conversations {
		if (c.participants[0] == self && c.participants[1] == other) || (c.participants[0] == other && c.participants[1] == self) {
			return c, nil
		}
	}
	conv := &mockConversation{
		id:           uuid.NewString(),
		participants: [2]string{self, other},
		updatedAt:    m.now().UTC(),
	}
	m.conversations[conv.id] = conv
	return conv, nil
}

func cloneProfile(p domain.UserProfile) *domain.UserProfile {
	p.Roles = slices.Clone(p.Roles)
	return &p
}
