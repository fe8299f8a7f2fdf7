package marketplace

import (
	"strings"
	"time"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

// naiveLayout is the timestamp format the API emits for columns stored without a zone.
const naiveLayout = "2006-01-02T15:04:05.999999"

type wireUser struct {
	ID        string   `json:"id"`
	FullName  string   `json:"fullName"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Roles     []string `json:"roles"`
	IsAdmin   bool     `json:"isAdmin"`
	CreatedAt string   `json:"createdAt"`
}

func (u wireUser) toDomain(op string) (*domain.UserProfile, error) {
	if u.ID == "" {
		return nil, malformed(op, "user without id")
	}
	created, err := parseOptionalTime(u.CreatedAt)
	if err != nil {
		return nil, malformed(op, "invalid user createdAt")
	}
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return &domain.UserProfile{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Phone:     u.Phone,
		Roles:     roles,
		IsAdmin:   u.IsAdmin,
		CreatedAt: created,
	}, nil
}

type wireAuthResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	User        *wireUser `json:"user"`
}

func (r wireAuthResponse) toDomain(op string) (*domain.AuthResult, error) {
	if r.AccessToken == "" {
		return nil, malformed(op, "missing access_token")
	}
	out := &domain.AuthResult{Token: r.AccessToken}
	if r.User != nil {
		user, err := r.User.toDomain(op)
		if err != nil {
			return nil, err
		}
		out.User = user
	}
	return out, nil
}

type wireSignupRequest struct {
	FullName string   `json:"fullName"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone,omitempty"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type wireCreateMessage struct {
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId,omitempty"`
}

type wireMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
	IsRead         bool   `json:"isRead"`
	CreatedAt      string `json:"createdAt"`
}

func (m wireMessage) toDomain(op, conversationID string) (domain.Message, error) {
	if m.ID == "" || m.SenderID == "" {
		return domain.Message{}, malformed(op, "message without id or senderId")
	}
	created, err := parseTime(m.CreatedAt)
	if err != nil {
		return domain.Message{}, malformed(op, "invalid message createdAt")
	}
	convID := m.ConversationID
	if convID == "" {
		convID = conversationID
	}
	return domain.Message{
		ID:             m.ID,
		ConversationID: convID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      created,
		DeliveryState:  domain.DeliveryStateConfirmed,
	}, nil
}

type wireParticipant struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

type wireConversation struct {
	ID                 string            `json:"id"`
	ParticipantDetails []wireParticipant `json:"participantDetails"`
	LastMessage        *wireMessage      `json:"lastMessage"`
	UnreadCount        int               `json:"unreadCount"`
	UpdatedAt          string            `json:"updatedAt"`
}

func (c wireConversation) toDomain() (domain.Conversation, error) {
	const op = "list_conversations"
	if c.ID == "" {
		return domain.Conversation{}, malformed(op, "conversation without id")
	}
	if c.UnreadCount < 0 {
		return domain.Conversation{}, malformed(op, "negative unreadCount")
	}
	updated, err := parseOptionalTime(c.UpdatedAt)
	if err != nil {
		return domain.Conversation{}, malformed(op, "invalid conversation updatedAt")
	}
	out := domain.Conversation{
		ID:           c.ID,
		Participants: make([]domain.UserSummary, 0, len(c.ParticipantDetails)),
		UnreadCount:  c.UnreadCount,
		UpdatedAt:    updated,
	}
	for _, p := range c.ParticipantDetails {
		out.Participants = append(out.Participants, domain.UserSummary{
			ID:        p.ID,
			FullName:  p.FullName,
			AvatarURL: p.AvatarURL,
		})
	}
	if c.LastMessage != nil {
		msg, err := c.LastMessage.toDomain(op, c.ID)
		if err != nil {
			return domain.Conversation{}, err
		}
		out.LastMessage = &msg
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}
