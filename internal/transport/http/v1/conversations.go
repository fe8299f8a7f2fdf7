package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

// EnterConversationList starts polling the conversation list.
// POST /v1/screens/conversations
func (h *Handler) EnterConversationList(c echo.Context) error {
	if err := h.engine.EnterConversationList(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LeaveConversationList stops polling the conversation list.
// DELETE /v1/screens/conversations
func (h *Handler) LeaveConversationList(c echo.Context) error {
	h.engine.LeaveConversationList()
	return c.NoContent(http.StatusNoContent)
}

// ListConversations returns the current conversation view.
// GET /v1/conversations
func (h *Handler) ListConversations(c echo.Context) error {
	index := h.engine.Conversations()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": index.Conversations(),
		"version":       index.Version(),
		"loaded":        index.Loaded(),
		"total_unread":  index.TotalUnread(),
	})
}

// OpenConversation gets or creates the conversation with a user.
// POST /v1/conversations
func (h *Handler) OpenConversation(c echo.Context) error {
	var req domain.OpenConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	id, err := h.engine.Conversations().OpenConversation(c.Request().Context(), req.ReceiverID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"conversation_id": id})
}

// RefreshConversations refreshes the conversation list now.
// POST /v1/conversations/refresh
func (h *Handler) RefreshConversations(c echo.Context) error {
	if err := h.engine.Conversations().Refresh(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return h.ListConversations(c)
}
