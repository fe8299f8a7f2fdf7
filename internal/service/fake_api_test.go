package service

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/policy"
	"github.com/xiaot623/gogo/fitsync/internal/repository"
	"github.com/xiaot623/gogo/fitsync/tests/helpers"
)

var errExpired = &domain.Error{Kind: domain.ErrAuth, Op: "test", Status: http.StatusUnauthorized, Message: "token expired"}

// fakeAPI is a scriptable API. A non-nil gate makes the call block until the
// gate is closed.
type fakeAPI struct {
	mu sync.Mutex

	profiles   map[string]*domain.UserProfile
	profileErr error

	authResult *domain.AuthResult
	authErr    error
	authGate   chan struct{}

	conversations []domain.Conversation
	convErr       error
	convGate      chan struct{}
	convCalls     atomic.Int32

	messages  map[string][]domain.Message
	msgErr    error
	msgGate   chan struct{}
	msgCalls  atomic.Int32
	msgServed atomic.Int32

	create      func(req domain.CreateMessageRequest) (*domain.Message, error)
	createCalls atomic.Int32

	openID string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		profiles: make(map[string]*domain.UserProfile),
		messages: make(map[string][]domain.Message),
	}
}

func (f *fakeAPI) setConversations(convs []domain.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = convs
}

func (f *fakeAPI) setMessages(conversationID string, msgs []domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[conversationID] = msgs
}

func (f *fakeAPI) setConvErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convErr = err
}

func wait(gate chan struct{}) {
	if gate != nil {
		<-gate
	}
}

func (f *fakeAPI) GetProfile(ctx context.Context, token string) (*domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p, ok := f.profiles[token]
	if !ok {
		return nil, errExpired
	}
	cp := *p
	return &cp, nil
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	f.mu.Lock()
	gate := f.authGate
	f.mu.Unlock()
	wait(gate)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return nil, f.authErr
	}
	res := *f.authResult
	return &res, nil
}

func (f *fakeAPI) Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResult, error) {
	return f.Login(ctx, req.Email, req.Password)
}

func (f *fakeAPI) DeleteAccount(ctx context.Context, token string) error {
	return nil
}

func (f *fakeAPI) ListConversations(ctx context.Context, token string) ([]domain.Conversation, error) {
	f.convCalls.Add(1)
	f.mu.Lock()
	gate := f.convGate
	f.mu.Unlock()
	wait(gate)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return nil, f.convErr
	}
	out := make([]domain.Conversation, len(f.conversations))
	for i, c := range f.conversations {
		out[i] = cloneConversation(c)
	}
	return out, nil
}

func (f *fakeAPI) OpenConversation(ctx context.Context, token, receiverID string) (string, error) {
	return f.openID, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, token, conversationID string) ([]domain.Message, error) {
	f.msgCalls.Add(1)
	defer f.msgServed.Add(1)
	f.mu.Lock()
	gate := f.msgGate
	f.mu.Unlock()
	wait(gate)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	return append([]domain.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, token string, req domain.CreateMessageRequest) (*domain.Message, error) {
	f.createCalls.Add(1)
	return f.create(req)
}

var _ API = (*fakeAPI)(nil)

func testProfile(id string, roles ...string) *domain.UserProfile {
	return &domain.UserProfile{ID: id, FullName: "User " + id, Email: id + "@example.com", Roles: roles}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	return helpers.NewTestSQLiteStore(t)
}

func newTestSession(t *testing.T, api API, st StateStore) *SessionStore {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	return NewSessionStore(api, st, engine, nil)
}

// signedIn returns an authenticated session for user u1 holding token tok.
func signedIn(t *testing.T, api *fakeAPI) *SessionStore {
	t.Helper()
	api.profiles["tok"] = testProfile("u1", domain.RoleTrainer, domain.RoleTrainee)
	st := newTestStore(t)
	require.NoError(t, st.SaveToken(context.Background(), "tok"))
	s := newTestSession(t, api, st)
	require.NoError(t, s.Initialize(context.Background()))
	require.True(t, s.Current().Authenticated())
	return s
}

func msg(id, sender, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       sender,
		Content:        content,
		CreatedAt:      at,
		DeliveryState:  domain.DeliveryStateConfirmed,
	}
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
