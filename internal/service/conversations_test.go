package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

func conv(id string, last *time.Time) domain.Conversation {
	c := domain.Conversation{
		ID:           id,
		Participants: []domain.UserSummary{{ID: "u1", FullName: "Me"}, {ID: "peer-" + id, FullName: "Peer " + id}},
		UpdatedAt:    t0,
	}
	if last != nil {
		c.LastMessage = &domain.Message{ID: "m-" + id, ConversationID: id, SenderID: "u1", Content: "hi", CreatedAt: *last}
	}
	return c
}

func at(minutes int) *time.Time {
	ts := t0.Add(time.Duration(minutes) * time.Minute)
	return &ts
}

func ids(convs []domain.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestConversationRefreshSortsView(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)

	api.setConversations([]domain.Conversation{
		conv("b", at(1)),
		conv("empty", nil),
		conv("a", at(5)),
		conv("c", at(1)),
	})
	require.NoError(t, index.Refresh(context.Background()))

	assert.Equal(t, []string{"a", "b", "c", "empty"}, ids(index.Conversations()))
	assert.True(t, index.Loaded())
}

func TestConversationSortHoldsAcrossRefreshes(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		var convs []domain.Conversation
		n := rng.Intn(8)
		for i := 0; i < n; i++ {
			id := string(rune('a' + rng.Intn(6)))
			if rng.Intn(4) == 0 {
				convs = append(convs, conv(id, nil))
			} else {
				convs = append(convs, conv(id, at(rng.Intn(5))))
			}
		}
		api.setConversations(convs)
		require.NoError(t, index.Refresh(context.Background()))

		view := index.Conversations()
		seen := map[string]bool{}
		for i, c := range view {
			assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
			seen[c.ID] = true
			if i > 0 {
				assert.LessOrEqual(t, compareConversations(view[i-1], c), 0)
			}
		}
	}
}

func TestConversationRefreshDropsAbsentIDs(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)

	api.setConversations([]domain.Conversation{conv("a", at(1)), conv("b", at(2))})
	require.NoError(t, index.Refresh(context.Background()))
	api.setConversations([]domain.Conversation{conv("a", at(3))})
	require.NoError(t, index.Refresh(context.Background()))

	view := index.Conversations()
	require.Len(t, view, 1)
	assert.Equal(t, *at(3), view[0].LastMessage.CreatedAt)
}

func TestIdenticalConversationListKeepsVersion(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)

	api.setConversations([]domain.Conversation{conv("a", at(1)), conv("b", at(2))})
	require.NoError(t, index.Refresh(context.Background()))
	version := index.Version()
	before := index.Conversations()

	require.NoError(t, index.Refresh(context.Background()))
	assert.Equal(t, version, index.Version())
	assert.Equal(t, before, index.Conversations())

	changed := conv("a", at(1))
	changed.UnreadCount = 2
	api.setConversations([]domain.Conversation{changed, conv("b", at(2))})
	require.NoError(t, index.Refresh(context.Background()))
	assert.Equal(t, version+1, index.Version())
	assert.Equal(t, 2, index.TotalUnread())
}

func TestConcurrentConversationRefreshSharesOneCall(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)
	api.setConversations([]domain.Conversation{conv("a", at(1))})
	gate := make(chan struct{})
	api.mu.Lock()
	api.convGate = gate
	api.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, index.Refresh(context.Background()))
		}()
	}
	require.Eventually(t, func() bool { return api.convCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), api.convCalls.Load())
	assert.Len(t, index.Conversations(), 1)
}

func TestCancelledCallerDoesNotSpoilSharedRefresh(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)
	api.setConversations([]domain.Conversation{conv("a", at(1))})
	gate := make(chan struct{})
	api.mu.Lock()
	api.convGate = gate
	api.mu.Unlock()

	reqCtx, cancel := context.WithCancel(context.Background())
	reqDone := make(chan error, 1)
	go func() { reqDone <- index.Refresh(reqCtx) }()
	require.Eventually(t, func() bool { return api.convCalls.Load() == 1 }, time.Second, time.Millisecond)

	pollDone := make(chan error, 1)
	go func() { pollDone <- index.Refresh(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-reqDone, context.Canceled)
	close(gate)

	require.NoError(t, <-pollDone)
	assert.Equal(t, int32(1), api.convCalls.Load())
	assert.True(t, index.Loaded())
	assert.Equal(t, []string{"a"}, ids(index.Conversations()))
}

func TestRefreshOutlivesCancelledStarter(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)
	api.setConversations([]domain.Conversation{conv("a", at(1))})
	gate := make(chan struct{})
	api.mu.Lock()
	api.convGate = gate
	api.mu.Unlock()

	pollCtx, stop := context.WithCancel(context.Background())
	pollDone := make(chan error, 1)
	go func() { pollDone <- index.Refresh(pollCtx) }()
	require.Eventually(t, func() bool { return api.convCalls.Load() == 1 }, time.Second, time.Millisecond)

	reqDone := make(chan error, 1)
	go func() { reqDone <- index.Refresh(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	stop()
	assert.ErrorIs(t, <-pollDone, context.Canceled)
	close(gate)

	require.NoError(t, <-reqDone)
	assert.Len(t, index.Conversations(), 1)
}

func TestRefreshRefetchesAfterUserSwitch(t *testing.T) {
	api := newFakeAPI()
	session := signedIn(t, api)
	index := NewConversationIndex(api, session, nil)
	api.setConversations([]domain.Conversation{conv("a", at(1))})
	gate := make(chan struct{})
	api.mu.Lock()
	api.convGate = gate
	api.authResult = &domain.AuthResult{Token: "tok2", User: testProfile("u2", domain.RoleTrainee)}
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- index.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return api.convCalls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := session.Login(context.Background(), "u2@example.com", "pw")
	require.NoError(t, err)
	close(gate)

	require.NoError(t, <-done)
	assert.Equal(t, int32(2), api.convCalls.Load())
	assert.True(t, index.Loaded())
	assert.Len(t, index.Conversations(), 1)
}

func TestConversationRefreshRejectedWhenSignedOut(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, newTestSession(t, api, newTestStore(t)), nil)

	err := index.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, int32(0), api.convCalls.Load())
}

func TestConversationAuthErrorExpiresSession(t *testing.T) {
	api := newFakeAPI()
	session := signedIn(t, api)
	index := NewConversationIndex(api, session, nil)
	api.setConvErr(errExpired)

	err := index.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, domain.SessionStateUnauthenticated, session.Current().State)
}

func TestConversationPeer(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)
	api.setConversations([]domain.Conversation{conv("a", at(1))})
	require.NoError(t, index.Refresh(context.Background()))

	peer, ok := index.Peer("a", "u1")
	require.True(t, ok)
	assert.Equal(t, "peer-a", peer.ID)

	_, ok = index.Peer("missing", "u1")
	assert.False(t, ok)
}

func TestOpenConversation(t *testing.T) {
	api := newFakeAPI()
	api.openID = "c9"
	index := NewConversationIndex(api, signedIn(t, api), nil)

	id, err := index.OpenConversation(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "c9", id)

	_, err = index.OpenConversation(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = index.OpenConversation(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResetClearsView(t *testing.T) {
	api := newFakeAPI()
	index := NewConversationIndex(api, signedIn(t, api), nil)
	api.setConversations([]domain.Conversation{conv("a", at(1))})
	require.NoError(t, index.Refresh(context.Background()))

	index.Reset()
	assert.Empty(t, index.Conversations())
	assert.False(t, index.Loaded())
}
