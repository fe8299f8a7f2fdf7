// Package v1 provides the bridge HTTP handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/service"
)

// Handler handles bridge requests.
type Handler struct {
	engine *service.Engine
}

// NewHandler creates a new handler.
func NewHandler(engine *service.Engine) *Handler {
	return &Handler{
		engine: engine,
	}
}

// RegisterRoutes registers the bridge routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session
	e.GET("/v1/session", h.GetSession)
	e.POST("/v1/session/login", h.Login)
	e.POST("/v1/session/signup", h.Signup)
	e.POST("/v1/session/logout", h.Logout)
	e.PUT("/v1/session/role", h.SetRole)
	e.DELETE("/v1/session/account", h.DeleteAccount)

	// Conversation list screen
	e.POST("/v1/screens/conversations", h.EnterConversationList)
	e.DELETE("/v1/screens/conversations", h.LeaveConversationList)
	e.GET("/v1/conversations", h.ListConversations)
	e.POST("/v1/conversations", h.OpenConversation)
	e.POST("/v1/conversations/refresh", h.RefreshConversations)

	// Thread screen
	e.POST("/v1/screens/thread", h.EnterThread)
	e.DELETE("/v1/screens/thread", h.LeaveThread)
	e.GET("/v1/thread", h.GetThread)
	e.POST("/v1/thread/messages", h.SendMessage)
	e.POST("/v1/thread/refresh", h.RefreshThread)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"session": string(h.engine.Session().Current().State),
	})
}

// errorStatus maps an engine error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTransientNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(c echo.Context, err error) error {
	if ctxErr := c.Request().Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "request cancelled", "kind": "transient"})
	}
	return c.JSON(errorStatus(err), map[string]string{
		"error": err.Error(),
		"kind":  domain.KindLabel(err),
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg, "kind": "validation"})
}
