package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/metrics"
	"github.com/xiaot623/gogo/fitsync/internal/observability"
)

// PendingIDPrefix marks ids of messages that have not reached the server.
const PendingIDPrefix = "local_"

// SendCoordinator submits outbound messages and tracks them as Pending in
// the thread until their Confirmed copy is observed.
type SendCoordinator struct {
	api     API
	session *SessionStore
	thread  *ThreadSync
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewSendCoordinator creates a send coordinator. m may be nil.
func NewSendCoordinator(api API, session *SessionStore, thread *ThreadSync, m *metrics.Metrics, logger *zap.Logger) *SendCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendCoordinator{
		api:     api,
		session: session,
		thread:  thread,
		metrics: m,
		logger:  logger.Named("send"),
		now:     time.Now,
	}
}

// Send validates and submits content to conversationID as senderID. An empty
// senderID means the signed-in user. On success the thread is refreshed and
// the server copy returned; on failure the optimistic record is removed.
func (s *SendCoordinator) Send(ctx context.Context, conversationID, senderID, content string) (*domain.Message, error) {
	msg, err := s.send(ctx, conversationID, senderID, content)
	if s.metrics != nil {
		result := "ok"
		if err != nil {
			result = domain.KindLabel(err)
		}
		s.metrics.MessagesSent.WithLabelValues(result).Inc()
	}
	return msg, err
}

func (s *SendCoordinator) send(ctx context.Context, conversationID, senderID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if conversationID == "" {
		return nil, domain.ValidationError("send", "conversation is required")
	}

	sess, err := s.session.Authorize(ctx, domain.ActionSendMessage)
	if err != nil {
		return nil, err
	}
	if senderID == "" {
		senderID = sess.UserID
	}
	if senderID != sess.UserID {
		return nil, domain.ValidationError("send", "sender is not the signed-in user")
	}

	var receiverID string
	if bound, peer := s.thread.Binding(); bound == conversationID {
		receiverID = peer
	}

	pending := domain.Message{
		ID:             PendingIDPrefix + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		CreatedAt:      s.now().UTC(),
		DeliveryState:  domain.DeliveryStatePending,
	}
	tracked := s.thread.AddPending(pending)

	created, err := s.api.CreateMessage(ctx, sess.Token, domain.CreateMessageRequest{
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
	})
	if err != nil {
		if tracked {
			s.thread.RemovePending(pending.ID)
		}
		s.logger.Warn("send failed", append([]zap.Field{zap.String("conversation_id", conversationID)}, observability.ErrorFields(err)...)...)
		return nil, s.session.expireOn(ctx, sess, err)
	}

	if tracked {
		s.thread.AttachServerID(pending.ID, created.ID)
		if err := s.thread.Refresh(ctx); err != nil {
			s.logger.Debug("refresh after send failed", observability.ErrorFields(err)...)
		}
	}
	return created, nil
}

func validateContent(content string) error {
	if content == "" {
		return domain.ValidationError("send", "message must not be empty")
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageLength {
		return domain.ValidationError("send", "message exceeds 1000 characters")
	}
	return nil
}
