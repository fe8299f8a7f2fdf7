package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

type sessionResponse struct {
	domain.Session
	Ready bool `json:"ready"`
}

func (h *Handler) sessionJSON(c echo.Context, status int, sess domain.Session) error {
	ready := false
	select {
	case <-h.engine.Session().Ready():
		ready = true
	default:
	}
	return c.JSON(status, sessionResponse{Session: sess, Ready: ready})
}

// GetSession returns the current session.
// GET /v1/session
func (h *Handler) GetSession(c echo.Context) error {
	return h.sessionJSON(c, http.StatusOK, h.engine.Session().Current())
}

// Login signs in with email and password.
// POST /v1/session/login
func (h *Handler) Login(c echo.Context) error {
	var req domain.LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	sess, err := h.engine.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return h.sessionJSON(c, http.StatusOK, sess)
}

// Signup registers a new account and signs it in.
// POST /v1/session/signup
func (h *Handler) Signup(c echo.Context) error {
	var req domain.SignupRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email == "" || req.Password == "" || req.FullName == "" {
		return badRequest(c, "full_name, email and password are required")
	}
	if len(req.Roles) == 0 {
		return badRequest(c, "at least one role is required")
	}

	sess, err := h.engine.Signup(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return h.sessionJSON(c, http.StatusCreated, sess)
}

// Logout ends the session and stops every screen.
// POST /v1/session/logout
func (h *Handler) Logout(c echo.Context) error {
	if err := h.engine.Logout(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetRole switches the active role. Unknown roles leave the session unchanged.
// PUT /v1/session/role
func (h *Handler) SetRole(c echo.Context) error {
	var req domain.SetRoleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Role == "" {
		return badRequest(c, "role is required")
	}

	sess, err := h.engine.Session().SetActiveRole(c.Request().Context(), req.Role)
	if err != nil {
		return writeError(c, err)
	}
	return h.sessionJSON(c, http.StatusOK, sess)
}

// DeleteAccount deletes the remote account and logs out.
// DELETE /v1/session/account
func (h *Handler) DeleteAccount(c echo.Context) error {
	if err := h.engine.DeleteAccount(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
