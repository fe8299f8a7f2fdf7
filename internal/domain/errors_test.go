package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKind(t *testing.T) {
	err := &Error{Kind: ErrAuth, Op: "list_conversations", Status: 401, Message: "token expired"}
	wrapped := fmt.Errorf("refresh: %w", err)

	assert.True(t, errors.Is(wrapped, ErrAuth))
	assert.False(t, errors.Is(wrapped, ErrServer))
	assert.True(t, IsAuth(wrapped))
	assert.Equal(t, "list_conversations: auth error (status 401): token expired", err.Error())
}

func TestErrorMatchesCause(t *testing.T) {
	err := &Error{Kind: ErrTransientNetwork, Op: "list_messages", Err: context.DeadlineExceeded}

	assert.True(t, errors.Is(err, ErrTransientNetwork))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err   error
		kind  error
		label string
	}{
		{nil, nil, "none"},
		{ValidationError("send", "empty"), ErrValidation, "validation"},
		{ErrUnauthenticated, ErrAuth, "auth"},
		{NewError(ErrTransientNetwork, "get", "timeout"), ErrTransientNetwork, "transient"},
		{errors.New("boom"), ErrServer, "server"},
		{context.Canceled, ErrTransientNetwork, "transient"},
		{fmt.Errorf("list conversations: %w", context.DeadlineExceeded), ErrTransientNetwork, "transient"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, KindOf(tc.err))
		assert.Equal(t, tc.label, KindLabel(tc.err))
	}
}
