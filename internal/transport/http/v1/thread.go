package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

// EnterThread opens a conversation and starts polling it.
// POST /v1/screens/thread
func (h *Handler) EnterThread(c echo.Context) error {
	var req domain.EnterThreadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ConversationID == "" {
		return badRequest(c, "conversation_id is required")
	}

	if err := h.engine.EnterThread(c.Request().Context(), req.ConversationID, req.PeerID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LeaveThread stops polling and closes the thread.
// DELETE /v1/screens/thread
func (h *Handler) LeaveThread(c echo.Context) error {
	h.engine.LeaveThread()
	return c.NoContent(http.StatusNoContent)
}

// GetThread returns the open thread.
// GET /v1/thread
func (h *Handler) GetThread(c echo.Context) error {
	thread := h.engine.Thread()
	conversationID, peerID := thread.Binding()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"peer_id":         peerID,
		"messages":        thread.Messages(),
		"version":         thread.Version(),
		"loaded":          thread.Loaded(),
	})
}

// SendMessage sends a message to the open thread.
// POST /v1/thread/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.engine.Send(c.Request().Context(), req.Content)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// RefreshThread refreshes the open thread now.
// POST /v1/thread/refresh
func (h *Handler) RefreshThread(c echo.Context) error {
	if err := h.engine.Thread().Refresh(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return h.GetThread(c)
}
