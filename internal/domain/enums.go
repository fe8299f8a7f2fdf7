// Package domain defines the core domain models for the sync engine.
package domain

// SessionState represents the authentication state of the local session.
type SessionState string

const (
	SessionStateUnauthenticated SessionState = "UNAUTHENTICATED"
	SessionStateAuthenticating  SessionState = "AUTHENTICATING"
	SessionStateAuthenticated   SessionState = "AUTHENTICATED"
)

// DeliveryState represents whether a message has been acknowledged by the server.
type DeliveryState string

const (
	// DeliveryStatePending is local-only: the message was submitted but no
	// server copy has been observed yet.
	DeliveryStatePending   DeliveryState = "PENDING"
	DeliveryStateConfirmed DeliveryState = "CONFIRMED"
)

// Well-known marketplace roles.
const (
	RoleTrainer = "trainer"
	RoleTrainee = "trainee"
	RoleAdmin   = "admin"
)

// Action names an operation guarded by the access policy.
type Action string

const (
	ActionPollConversations Action = "poll_conversations"
	ActionPollMessages      Action = "poll_messages"
	ActionSendMessage       Action = "send_message"
	ActionOpenConversation  Action = "open_conversation"
	ActionSwitchRole        Action = "switch_role"
	ActionDeleteAccount     Action = "delete_account"
)

// Decision is the outcome of an access policy evaluation.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDefer Decision = "defer"
	DecisionDeny  Decision = "deny"
)

// MaxMessageLength is the maximum number of characters in a message body.
const MaxMessageLength = 1000
