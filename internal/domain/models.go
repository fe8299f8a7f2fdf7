package domain

import (
	"slices"
	"time"
)

// UserProfile is the authenticated user as returned by the marketplace.
type UserProfile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Roles     []string  `json:"roles"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// HasRole reports whether the profile carries the given role.
func (p *UserProfile) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

// UserSummary is the participant view embedded in a conversation.
type UserSummary struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Session is the local authenticated identity.
// ActiveRole, when set, is always a member of Roles.
type Session struct {
	Token      string       `json:"-"`
	UserID     string       `json:"user_id,omitempty"`
	User       *UserProfile `json:"user,omitempty"`
	Roles      []string     `json:"roles,omitempty"`
	ActiveRole string       `json:"active_role,omitempty"`
	State      SessionState `json:"state"`
}

// Authenticated reports whether the session carries a validated token.
func (s Session) Authenticated() bool {
	return s.State == SessionStateAuthenticated && s.Token != ""
}

// HasRole reports whether role is one of the session roles.
func (s Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s Session) Clone() Session {
	out := s
	out.Roles = slices.Clone(s.Roles)
	if s.User != nil {
		u := *s.User
		u.Roles = slices.Clone(s.User.Roles)
		out.User = &u
	}
	return out
}

// Message is a single chat message in a conversation thread.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	ReceiverID     string        `json:"receiver_id,omitempty"`
	Content        string        `json:"content"`
	IsRead         bool          `json:"is_read"`
	CreatedAt      time.Time     `json:"created_at"`
	DeliveryState  DeliveryState `json:"delivery_state"`
}

// Pending reports whether the message is a local optimistic record.
func (m Message) Pending() bool {
	return m.DeliveryState == DeliveryStatePending
}

// Conversation is the summary of a chat between participants.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []UserSummary `json:"participants"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Equal reports structural equality of two conversation summaries.
func (c Conversation) Equal(o Conversation) bool {
	if c.ID != o.ID || c.UnreadCount != o.UnreadCount || !c.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if !slices.Equal(c.Participants, o.Participants) {
		return false
	}
	switch {
	case c.LastMessage == nil && o.LastMessage == nil:
		return true
	case c.LastMessage == nil || o.LastMessage == nil:
		return false
	}
	a, b := *c.LastMessage, *o.LastMessage
	return a.ID == b.ID && a.ConversationID == b.ConversationID && a.SenderID == b.SenderID &&
		a.ReceiverID == b.ReceiverID && a.Content == b.Content && a.IsRead == b.IsRead &&
		a.CreatedAt.Equal(b.CreatedAt) && a.DeliveryState == b.DeliveryState
}
