package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kindlingnews/kindling/internal/errors"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	u, err := s.app.Register(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	if err := s.setSessionToken(c, u.AuthToken); err != nil {
		slog.Warn("Failed to save session after register", "user_id", u.ID, "error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":  u.ID,
		"username": u.Username,
		"karma":    u.Karma,
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	u, err := s.app.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	if err := s.setSessionToken(c, u.AuthToken); err != nil {
		return errors.InternalError("failed to save session", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":  u.ID,
		"username": u.Username,
		"karma":    u.Karma,
	})
}

// handleLogout rotates the auth token (invalidating every session for the
// account) and drops this session's cookie.
func (s *Server) handleLogout(c echo.Context) error {
	if err := s.app.Logout(c.Request().Context(), viewerID(c)); err != nil {
		return err
	}
	if err := s.clearSession(c); err != nil {
		slog.Warn("Failed to clear session on logout", "error", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
