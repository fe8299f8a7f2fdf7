package service

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/metrics"
)

// ThreadSync holds the message thread of the open conversation.
//
// Confirmed messages are only ever added or replaced; a fetch that returns
// fewer distinct ids than are held is treated as stale and ignored. Pending
// messages stay visible until a Confirmed copy absorbs them.
type ThreadSync struct {
	api     API
	session *SessionStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	fetches sharedFetch

	mu             sync.RWMutex
	conversationID string
	peerID         string
	generation     uint64
	seq            uint64
	confirmed      map[string]*confirmedEntry
	pending        []*pendingEntry
	view           []domain.Message
	version        uint64
	loaded         bool
}

type confirmedEntry struct {
	msg       domain.Message
	firstSeen uint64
	claimed   bool
}

type pendingEntry struct {
	msg      domain.Message
	created  uint64
	serverID string
}

// NewThreadSync creates an unbound thread. m may be nil.
func NewThreadSync(api API, session *SessionStore, m *metrics.Metrics, logger *zap.Logger) *ThreadSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadSync{
		api:       api,
		session:   session,
		metrics:   m,
		logger:    logger.Named("thread"),
		confirmed: make(map[string]*confirmedEntry),
	}
}

// Open binds the thread to a conversation and clears it. Reopening the bound
// conversation only updates the peer.
func (t *ThreadSync) Open(conversationID, peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conversationID == t.conversationID && conversationID != "" {
		if peerID != "" {
			t.peerID = peerID
		}
		return
	}
	t.rebind(conversationID, peerID)
}

// Close unbinds the thread and clears it.
func (t *ThreadSync) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rebind("", "")
}

func (t *ThreadSync) rebind(conversationID, peerID string) {
	if len(t.view) > 0 {
		t.version++
	}
	t.conversationID = conversationID
	t.peerID = peerID
	t.generation++
	t.seq = 0
	t.confirmed = make(map[string]*confirmedEntry)
	t.pending = nil
	t.view = nil
	t.loaded = false
	t.setPendingGauge()
}

// Binding returns the bound conversation and peer.
func (t *ThreadSync) Binding() (conversationID, peerID string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conversationID, t.peerID
}

// Refresh fetches the bound conversation and merges it into the thread.
// Overlapping calls for the same binding share one fetch; a caller whose ctx
// ends stops waiting without affecting the others.
func (t *ThreadSync) Refresh(ctx context.Context) error {
	t.mu.RLock()
	conversationID, generation := t.conversationID, t.generation
	t.mu.RUnlock()
	if conversationID == "" {
		return domain.ValidationError("thread.refresh", "no conversation open")
	}

	key := strconv.FormatUint(generation, 10) + ":" + conversationID
	return t.fetches.do(ctx, key, func(ctx context.Context, live func() bool) (bool, error) {
		return t.refresh(ctx, live, conversationID, generation)
	})
}

func (t *ThreadSync) refresh(ctx context.Context, live func() bool, conversationID string, generation uint64) (bool, error) {
	sess, err := t.session.Authorize(ctx, domain.ActionPollMessages)
	if err != nil {
		return false, err
	}
	fetched, err := t.api.ListMessages(ctx, sess.Token, conversationID)
	if err != nil {
		return false, t.session.expireOn(ctx, sess, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !live() {
		return false, nil
	}
	// A rebind means the caller's conversation is gone; there is nothing to refetch.
	if t.generation != generation {
		t.logger.Debug("discarding messages for a closed conversation", zap.String("conversation_id", conversationID))
		return true, nil
	}
	t.merge(fetched)
	return true, nil
}

// merge folds a fetch into the thread. Callers hold t.mu.
func (t *ThreadSync) merge(fetched []domain.Message) {
	ids := make(map[string]struct{}, len(fetched))
	for _, m := range fetched {
		ids[m.ID] = struct{}{}
	}
	if len(ids) < len(t.confirmed) {
		t.logger.Debug("ignoring stale thread response",
			zap.String("conversation_id", t.conversationID),
			zap.Int("held", len(t.confirmed)),
			zap.Int("fetched", len(ids)))
		if t.metrics != nil {
			t.metrics.StaleRefreshes.Inc()
		}
		return
	}

	t.seq++
	for _, m := range fetched {
		m.DeliveryState = domain.DeliveryStateConfirmed
		if m.ConversationID == "" {
			m.ConversationID = t.conversationID
		}
		if entry, ok := t.confirmed[m.ID]; ok {
			entry.msg = m
			continue
		}
		t.confirmed[m.ID] = &confirmedEntry{msg: m, firstSeen: t.seq}
	}
	t.reconcile()
	t.loaded = true
	t.rebuild()
}

// reconcile drops every Pending record whose Confirmed copy is held. A record
// with a known server id matches that id. Otherwise it matches the newest
// unclaimed Confirmed message with the same conversation, sender and content
// first seen after the record was created. Each Confirmed message absorbs at
// most one Pending record.
func (t *ThreadSync) reconcile() {
	kept := t.pending[:0]
	for _, p := range t.pending {
		if p.serverID != "" {
			if entry, ok := t.confirmed[p.serverID]; ok {
				entry.claimed = true
				continue
			}
			kept = append(kept, p)
			continue
		}
		if entry := t.contentMatch(p); entry != nil {
			entry.claimed = true
			continue
		}
		kept = append(kept, p)
	}
	clear(t.pending[len(kept):])
	t.pending = kept
	t.setPendingGauge()
}

func (t *ThreadSync) contentMatch(p *pendingEntry) *confirmedEntry {
	var best *confirmedEntry
	for _, entry := range t.confirmed {
		if entry.claimed || entry.firstSeen <= p.created {
			continue
		}
		m := entry.msg
		if m.ConversationID != p.msg.ConversationID || m.SenderID != p.msg.SenderID || m.Content != p.msg.Content {
			continue
		}
		if best == nil || compareMessages(m, best.msg) > 0 {
			best = entry
		}
	}
	return best
}

// rebuild recomputes the sorted view and bumps the version when it changed.
func (t *ThreadSync) rebuild() {
	next := make([]domain.Message, 0, len(t.confirmed)+len(t.pending))
	for _, entry := range t.confirmed {
		next = append(next, entry.msg)
	}
	for _, p := range t.pending {
		next = append(next, p.msg)
	}
	slices.SortFunc(next, compareMessages)
	if slices.Equal(next, t.view) {
		return
	}
	t.view = next
	t.version++
}

// AddPending inserts an optimistic record into the thread. It reports false
// when msg does not belong to the bound conversation.
func (t *ThreadSync) AddPending(msg domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conversationID == "" || msg.ConversationID != t.conversationID {
		return false
	}
	msg.DeliveryState = domain.DeliveryStatePending
	t.pending = append(t.pending, &pendingEntry{msg: msg, created: t.seq})
	t.setPendingGauge()
	t.rebuild()
	return true
}

// RemovePending drops an optimistic record.
func (t *ThreadSync) RemovePending(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.pending, func(p *pendingEntry) bool { return p.msg.ID == localID })
	if i < 0 {
		return
	}
	t.pending = slices.Delete(t.pending, i, i+1)
	t.setPendingGauge()
	t.rebuild()
}

// AttachServerID records the server id of an optimistic record. If the
// Confirmed copy is already held the record is absorbed immediately.
func (t *ThreadSync) AttachServerID(localID, serverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pending {
		if p.msg.ID == localID {
			p.serverID = serverID
			t.reconcile()
			t.rebuild()
			return
		}
	}
}

// Messages returns a copy of the ordered thread.
func (t *ThreadSync) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.view)
}

// Version increases every time the thread changes.
func (t *ThreadSync) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Loaded reports whether a refresh has completed for the bound conversation.
func (t *ThreadSync) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

func (t *ThreadSync) setPendingGauge() {
	if t.metrics != nil {
		t.metrics.PendingMessages.Set(float64(len(t.pending)))
	}
}

// compareMessages orders by creation time, oldest first, ties broken by id.
func compareMessages(a, b domain.Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
