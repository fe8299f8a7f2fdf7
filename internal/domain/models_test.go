package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionClone(t *testing.T) {
	s := Session{
		Token:      "tok",
		UserID:     "u1",
		User:       &UserProfile{ID: "u1", Roles: []string{RoleTrainer}},
		Roles:      []string{RoleTrainer, RoleTrainee},
		ActiveRole: RoleTrainer,
		State:      SessionStateAuthenticated,
	}

	c := s.Clone()
	c.Roles[0] = "changed"
	c.User.Roles[0] = "changed"

	assert.Equal(t, RoleTrainer, s.Roles[0])
	assert.Equal(t, RoleTrainer, s.User.Roles[0])
	assert.True(t, s.Authenticated())
	assert.True(t, s.HasRole(RoleTrainee))
	assert.False(t, Session{State: SessionStateAuthenticated}.Authenticated())
}

func TestConversationEqual(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	base := Conversation{
		ID:           "c1",
		Participants: []UserSummary{{ID: "u1"}, {ID: "u2"}},
		LastMessage:  &Message{ID: "m1", Content: "hi", CreatedAt: at, DeliveryState: DeliveryStateConfirmed},
		UnreadCount:  1,
		UpdatedAt:    at,
	}
	same := base
	same.LastMessage = &Message{ID: "m1", Content: "hi", CreatedAt: at.In(time.FixedZone("x", 3600)), DeliveryState: DeliveryStateConfirmed}
	assert.True(t, base.Equal(same))

	other := base
	other.UnreadCount = 0
	assert.False(t, base.Equal(other))

	noLast := base
	noLast.LastMessage = nil
	assert.False(t, base.Equal(noLast))
	assert.True(t, noLast.Equal(noLast))
}
