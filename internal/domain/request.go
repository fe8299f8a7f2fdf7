package domain

// LoginRequest carries credentials for a login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest carries the profile data for a new account.
type SignupRequest struct {
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

// AuthResult is the response of a successful login or signup.
type AuthResult struct {
	Token string       `json:"-"`
	User  *UserProfile `json:"user"`
}

// CreateMessageRequest represents an outbound message submission.
type CreateMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id,omitempty"`
	Content        string `json:"content"`
}

// SetRoleRequest represents a request to switch the active role.
type SetRoleRequest struct {
	Role string `json:"role"`
}

// OpenConversationRequest represents a get-or-create conversation request.
type OpenConversationRequest struct {
	ReceiverID string `json:"receiver_id"`
}

// EnterThreadRequest binds the thread screen to a conversation.
type EnterThreadRequest struct {
	ConversationID string `json:"conversation_id"`
	PeerID         string `json:"peer_id,omitempty"`
}

// SendMessageRequest is the bridge payload for sending a message in the open thread.
type SendMessageRequest struct {
	Content string `json:"content"`
}
