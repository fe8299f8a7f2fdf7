package service

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

// ConversationIndex holds the sorted conversation list of the signed-in user.
type ConversationIndex struct {
	api     API
	session *SessionStore
	logger  *zap.Logger
	fetches sharedFetch

	mu      sync.RWMutex
	items   []domain.Conversation
	owner   string
	version uint64
	loaded  bool
}

// NewConversationIndex creates an empty index.
func NewConversationIndex(api API, session *SessionStore, logger *zap.Logger) *ConversationIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationIndex{
		api:     api,
		session: session,
		logger:  logger.Named("conversations"),
	}
}

// Refresh fetches the conversation list and merges it into the view.
// Overlapping calls share one fetch; a caller whose ctx ends stops waiting
// without affecting the others.
func (c *ConversationIndex) Refresh(ctx context.Context) error {
	return c.fetches.do(ctx, "conversations", c.refresh)
}

func (c *ConversationIndex) refresh(ctx context.Context, live func() bool) (bool, error) {
	sess, err := c.session.Authorize(ctx, domain.ActionPollConversations)
	if err != nil {
		return false, err
	}
	fetched, err := c.api.ListConversations(ctx, sess.Token)
	if err != nil {
		return false, c.session.expireOn(ctx, sess, err)
	}

	next := mergeConversations(fetched)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !live() {
		return false, nil
	}
	if c.session.Current().UserID != sess.UserID {
		c.logger.Debug("discarding conversations fetched for a previous session")
		return false, nil
	}
	c.loaded = true
	if c.owner == sess.UserID && slices.EqualFunc(c.items, next, domain.Conversation.Equal) {
		return true, nil
	}
	c.items = next
	c.owner = sess.UserID
	c.version++
	c.logger.Debug("conversation list updated", zap.Int("count", len(next)), zap.Uint64("version", c.version))
	return true, nil
}

// Conversations returns a copy of the sorted view.
func (c *ConversationIndex) Conversations() []domain.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Conversation, len(c.items))
	for i, conv := range c.items {
		out[i] = cloneConversation(conv)
	}
	return out
}

// Get returns one conversation from the view.
func (c *ConversationIndex) Get(id string) (domain.Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conv := range c.items {
		if conv.ID == id {
			return cloneConversation(conv), true
		}
	}
	return domain.Conversation{}, false
}

// Version increases every time the view changes.
func (c *ConversationIndex) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Loaded reports whether a refresh has completed since the last reset.
func (c *ConversationIndex) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// TotalUnread sums the unread counters of every conversation.
func (c *ConversationIndex) TotalUnread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, conv := range c.items {
		total += conv.UnreadCount
	}
	return total
}

// Peer returns the participant of conversationID other than selfID.
func (c *ConversationIndex) Peer(conversationID, selfID string) (domain.UserSummary, bool) {
	conv, ok := c.Get(conversationID)
	if !ok {
		return domain.UserSummary{}, false
	}
	return peerOf(conv, selfID)
}

// OpenConversation returns the conversation with receiverID, creating it on
// the server if needed.
func (c *ConversationIndex) OpenConversation(ctx context.Context, receiverID string) (string, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return "", domain.ValidationError("open_conversation", "receiver is required")
	}
	sess, err := c.session.Authorize(ctx, domain.ActionOpenConversation)
	if err != nil {
		return "", err
	}
	if receiverID == sess.UserID {
		return "", domain.ValidationError("open_conversation", "cannot open a conversation with yourself")
	}
	id, err := c.api.OpenConversation(ctx, sess.Token, receiverID)
	if err != nil {
		return "", c.session.expireOn(ctx, sess, err)
	}
	return id, nil
}

// Reset drops the view, as after a logout.
func (c *ConversationIndex) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) > 0 {
		c.version++
	}
	c.items = nil
	c.owner = ""
	c.loaded = false
}

// mergeConversations dedups fetched by id, later records winning, and sorts
// the result for display. Ids absent from fetched are dropped.
func mergeConversations(fetched []domain.Conversation) []domain.Conversation {
	byID := make(map[string]int, len(fetched))
	out := make([]domain.Conversation, 0, len(fetched))
	for _, conv := range fetched {
		if i, ok := byID[conv.ID]; ok {
			out[i] = cloneConversation(conv)
			continue
		}
		byID[conv.ID] = len(out)
		out = append(out, cloneConversation(conv))
	}
	slices.SortFunc(out, compareConversations)
	return out
}

// compareConversations orders by last message time, newest first.
// Conversations without messages go last; ties break on id.
func compareConversations(a, b domain.Conversation) int {
	switch {
	case a.LastMessage == nil && b.LastMessage != nil:
		return 1
	case a.LastMessage != nil && b.LastMessage == nil:
		return -1
	case a.LastMessage != nil && b.LastMessage != nil:
		if c := b.LastMessage.CreatedAt.Compare(a.LastMessage.CreatedAt); c != 0 {
			return c
		}
	}
	return strings.Compare(a.ID, b.ID)
}

func peerOf(conv domain.Conversation, selfID string) (domain.UserSummary, bool) {
	for _, p := range conv.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return domain.UserSummary{}, false
}

func cloneConversation(conv domain.Conversation) domain.Conversation {
	conv.Participants = slices.Clone(conv.Participants)
	if conv.LastMessage != nil {
		last := *conv.LastMessage
		conv.LastMessage = &last
	}
	return conv
}
