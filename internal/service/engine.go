package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/observability"
	"github.com/xiaot623/gogo/fitsync/internal/poll"
)

const (
	conversationJob = "conversations"
	threadJob       = "thread"
)

// EngineOptions configures the poll intervals of the screen jobs.
type EngineOptions struct {
	ConversationInterval time.Duration
	ThreadInterval       time.Duration
}

// Engine ties the sync components to the visible screens. Each screen owns
// one poll job that runs while the screen is entered.
type Engine struct {
	session       *SessionStore
	conversations *ConversationIndex
	thread        *ThreadSync
	sender        *SendCoordinator
	scheduler     *poll.Scheduler
	opts          EngineOptions
	logger        *zap.Logger

	scope  context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	convHandle   *poll.Handle
	threadHandle *poll.Handle
	closed       bool
}

// NewEngine creates an engine over already constructed components.
func NewEngine(session *SessionStore, conversations *ConversationIndex, thread *ThreadSync, sender *SendCoordinator, scheduler *poll.Scheduler, opts EngineOptions, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	scope, cancel := context.WithCancel(context.Background())
	return &Engine{
		session:       session,
		conversations: conversations,
		thread:        thread,
		sender:        sender,
		scheduler:     scheduler,
		opts:          opts,
		logger:        logger.Named("engine"),
		scope:         scope,
		cancel:        cancel,
	}
}

// Session returns the session store the engine gates on.
func (e *Engine) Session() *SessionStore { return e.session }

// Conversations returns the conversation list view.
func (e *Engine) Conversations() *ConversationIndex { return e.conversations }

// Thread returns the view of the open thread.
func (e *Engine) Thread() *ThreadSync { return e.thread }

// EnterConversationList starts polling the conversation list. Entering an
// already active screen is a no-op.
func (e *Engine) EnterConversationList(ctx context.Context) error {
	if err := e.requireSession(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEngineClosed
	}
	if running(e.convHandle) {
		return nil
	}
	e.convHandle = e.scheduler.Start(e.scope, poll.Job{
		Name:     conversationJob,
		Interval: e.opts.ConversationInterval,
		Fetch:    e.conversations.Refresh,
		OnError:  e.onPollError(conversationJob),
	})
	e.logger.Debug("conversation list entered")
	return nil
}

// LeaveConversationList stops the conversation list job and waits for it.
func (e *Engine) LeaveConversationList() {
	e.mu.Lock()
	h := e.convHandle
	e.convHandle = nil
	e.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// EnterThread binds the thread to conversationID and starts polling it.
// Entering another conversation replaces the running thread job.
func (e *Engine) EnterThread(ctx context.Context, conversationID, peerID string) error {
	if conversationID == "" {
		return domain.ValidationError("enter_thread", "conversation is required")
	}
	if err := e.requireSession(ctx); err != nil {
		return err
	}
	if peerID == "" {
		if peer, ok := e.conversations.Peer(conversationID, e.session.Current().UserID); ok {
			peerID = peer.ID
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEngineClosed
	}
	if bound, _ := e.thread.Binding(); bound == conversationID && running(e.threadHandle) {
		e.thread.Open(conversationID, peerID)
		return nil
	}
	if e.threadHandle != nil {
		e.threadHandle.Stop()
		e.threadHandle = nil
	}
	e.thread.Open(conversationID, peerID)
	e.threadHandle = e.scheduler.Start(e.scope, poll.Job{
		Name:     threadJob,
		Interval: e.opts.ThreadInterval,
		Fetch:    e.thread.Refresh,
		OnError:  e.onPollError(threadJob),
	})
	e.logger.Debug("thread entered", zap.String("conversation_id", conversationID))
	return nil
}

// LeaveThread stops the thread job and unbinds the thread.
func (e *Engine) LeaveThread() {
	e.mu.Lock()
	h := e.threadHandle
	e.threadHandle = nil
	e.mu.Unlock()
	if h != nil {
		h.Stop()
	}
	e.thread.Close()
}

// Send submits a message to the open thread as the signed-in user.
func (e *Engine) Send(ctx context.Context, content string) (*domain.Message, error) {
	conversationID, _ := e.thread.Binding()
	if conversationID == "" {
		return nil, domain.ValidationError("send", "no conversation open")
	}
	return e.sender.Send(ctx, conversationID, "", content)
}

// Login signs in. Views of a different previous user are dropped.
func (e *Engine) Login(ctx context.Context, email, password string) (domain.Session, error) {
	prev := e.session.Current().UserID
	sess, err := e.session.Login(ctx, email, password)
	if err == nil && sess.UserID != prev {
		e.resetViews()
	}
	return sess, err
}

// Signup registers and signs in a new account.
func (e *Engine) Signup(ctx context.Context, req domain.SignupRequest) (domain.Session, error) {
	sess, err := e.session.Signup(ctx, req)
	if err == nil {
		e.resetViews()
	}
	return sess, err
}

// Logout stops every job, clears the session and drops the views.
func (e *Engine) Logout(ctx context.Context) error {
	e.stopJobs()
	err := e.session.Logout(ctx)
	e.resetViews()
	return err
}

// DeleteAccount deletes the remote account and logs out.
func (e *Engine) DeleteAccount(ctx context.Context) error {
	if err := e.session.DeleteAccount(ctx); err != nil {
		return err
	}
	e.stopJobs()
	e.resetViews()
	return nil
}

// Close stops every job. The engine cannot be reused.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.stopJobs()
}

// Screens reports which screen jobs are running.
func (e *Engine) Screens() (conversationList, thread bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return running(e.convHandle), running(e.threadHandle)
}

func (e *Engine) requireSession(ctx context.Context) error {
	if err := e.session.WaitReady(ctx); err != nil {
		return err
	}
	if _, err := e.session.Authorize(ctx, domain.ActionPollConversations); err != nil {
		return err
	}
	return nil
}

func (e *Engine) stopJobs() {
	e.mu.Lock()
	conv, thread := e.convHandle, e.threadHandle
	e.convHandle, e.threadHandle = nil, nil
	e.mu.Unlock()
	for _, h := range []*poll.Handle{conv, thread} {
		if h != nil {
			h.Stop()
		}
	}
}

func (e *Engine) resetViews() {
	e.conversations.Reset()
	if bound, peer := e.thread.Binding(); bound != "" {
		e.thread.Close()
		e.thread.Open(bound, peer)
	}
}

// onPollError absorbs transient and server errors. An auth error has already
// expired the session; the job halts itself and the views are dropped.
func (e *Engine) onPollError(job string) func(error) {
	return func(err error) {
		if domain.IsAuth(err) {
			e.logger.Info("polling halted, session no longer valid", append([]zap.Field{zap.String("poller", job)}, observability.ErrorFields(err)...)...)
			e.resetViews()
			return
		}
		e.logger.Warn("poll failed", append([]zap.Field{zap.String("poller", job)}, observability.ErrorFields(err)...)...)
	}
}

func running(h *poll.Handle) bool {
	if h == nil {
		return false
	}
	select {
	case <-h.Done():
		return false
	default:
		return true
	}
}

var errEngineClosed = domain.NewError(domain.ErrServer, "engine", "engine closed")
