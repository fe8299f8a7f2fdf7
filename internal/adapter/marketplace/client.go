// Package marketplace provides the HTTP client for the remote marketplace API.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

const maxResponseBytes = 4 << 20

// Client is an HTTP client for the marketplace REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new marketplace client. Requests are paced to rps
// requests per second with the given burst.
func NewClient(baseURL string, timeout time.Duration, rps, burst int) *Client {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// GetProfile validates token and returns the current user.
// GET /auth/me
func (c *Client) GetProfile(ctx context.Context, token string) (*domain.UserProfile, error) {
	var user wireUser
	if err := c.do(ctx, "get_profile", http.MethodGet, "/auth/me", token, nil, &user); err != nil {
		return nil, err
	}
	return user.toDomain("get_profile")
}

// Login exchanges credentials for a token.
// POST /auth/login
func (c *Client) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var resp wireAuthResponse
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain("login")
}

// Signup registers a new account.
// POST /auth/signup
func (c *Client) Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResult, error) {
	body := wireSignupRequest{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Roles:    req.Roles,
	}
	var resp wireAuthResponse
	if err := c.do(ctx, "signup", http.MethodPost, "/auth/signup", "", body, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain("signup")
}

// DeleteAccount removes the signed-in account.
// DELETE /auth/me
func (c *Client) DeleteAccount(ctx context.Context, token string) error {
	return c.do(ctx, "delete_account", http.MethodDelete, "/auth/me", token, nil, nil)
}

// ListConversations returns the conversation summaries of the signed-in user.
// GET /conversations
func (c *Client) ListConversations(ctx context.Context, token string) ([]domain.Conversation, error) {
	var items []wireConversation
	if err := c.do(ctx, "list_conversations", http.MethodGet, "/conversations", token, nil, &items); err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(items))
	for _, item := range items {
		conv, err := item.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

// OpenConversation gets or creates the conversation with receiverID.
// POST /conversations?receiver_id=
func (c *Client) OpenConversation(ctx context.Context, token, receiverID string) (string, error) {
	var resp struct {
		ConversationID string `json:"conversationId"`
	}
	path := "/conversations?receiver_id=" + url.QueryEscape(receiverID)
	if err := c.do(ctx, "open_conversation", http.MethodPost, path, token, nil, &resp); err != nil {
		return "", err
	}
	if resp.ConversationID == "" {
		return "", malformed("open_conversation", "missing conversationId")
	}
	return resp.ConversationID, nil
}

// ListMessages returns the messages of one conversation in server order.
// GET /conversations/:id/messages
func (c *Client) ListMessages(ctx context.Context, token, conversationID string) ([]domain.Message, error) {
	var items []wireMessage
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, "list_messages", http.MethodGet, path, token, nil, &items); err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(items))
	for _, item := range items {
		msg, err := item.toDomain("list_messages", conversationID)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// CreateMessage submits a message and returns the stored copy.
// POST /messages
func (c *Client) CreateMessage(ctx context.Context, token string, req domain.CreateMessageRequest) (*domain.Message, error) {
	body := wireCreateMessage{
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		ConversationID: req.ConversationID,
	}
	var resp wireMessage
	if err := c.do(ctx, "create_message", http.MethodPost, "/messages", token, body, &resp); err != nil {
		return nil, err
	}
	msg, err := resp.toDomain("create_message", req.ConversationID)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.Error{Kind: domain.ErrTransientNetwork, Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &domain.Error{Kind: domain.ErrValidation, Op: op, Message: "failed to marshal request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.Error{Kind: domain.ErrServer, Op: op, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.Error{Kind: domain.ErrTransientNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &domain.Error{Kind: domain.ErrTransientNetwork, Op: op, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return malformed(op, "empty response body")
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.Error{Kind: domain.ErrServer, Op: op, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func statusError(op string, status int, body []byte) error {
	var kind error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = domain.ErrAuth
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		kind = domain.ErrValidation
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = domain.ErrTransientNetwork
	default:
		kind = domain.ErrServer
	}
	return &domain.Error{Kind: kind, Op: op, Status: status, Message: detail(body, status)}
}

// detail extracts the FastAPI style {"detail": ...} message.
func detail(body []byte, status int) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 256 {
		return text
	}
	return http.StatusText(status)
}

func malformed(op, message string) error {
	return &domain.Error{Kind: domain.ErrServer, Op: op, Message: fmt.Sprintf("malformed response: %s", message)}
}
