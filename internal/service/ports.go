package service

import (
	"context"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/policy"
	"github.com/xiaot623/gogo/fitsync/internal/repository"
)

// API is the remote marketplace service consumed by the engine.
// Implementations classify failures with the domain error kinds.
type API interface {
	GetProfile(ctx context.Context, token string) (*domain.UserProfile, error)
	Login(ctx context.Context, email, password string) (*domain.AuthResult, error)
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResult, error)
	DeleteAccount(ctx context.Context, token string) error

	ListConversations(ctx context.Context, token string) ([]domain.Conversation, error)
	OpenConversation(ctx context.Context, token, receiverID string) (string, error)
	ListMessages(ctx context.Context, token, conversationID string) ([]domain.Message, error)
	CreateMessage(ctx context.Context, token string, req domain.CreateMessageRequest) (*domain.Message, error)
}

// StateStore persists the client state that survives restarts.
type StateStore = store.Store

// PolicyEvaluator decides whether a session may perform an action.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, input policy.Input) (domain.Decision, error)
}
