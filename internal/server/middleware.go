package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/errors"
)

// requireAuth resolves the session cookie to a user and stores it in the
// request context. Requests without a valid token are rejected.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		u, ok := s.resolveUser(c)
		if !ok {
			return errors.UnauthorizedError("login required")
		}
		c.Set("userID", u.ID)
		c.Set("user", u)
		return next(c)
	}
}

// optionalAuth resolves the user when a valid session exists and proceeds
// anonymously otherwise.
func (s *Server) optionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if u, ok := s.resolveUser(c); ok {
			c.Set("userID", u.ID)
			c.Set("user", u)
		}
		return next(c)
	}
}

func (s *Server) resolveUser(c echo.Context) (*domain.User, bool) {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return nil, false
	}
	token, ok := session.Values[sessionKeyToken].(string)
	if !ok || token == "" {
		return nil, false
	}
	u, err := s.app.Authenticate(c.Request().Context(), token)
	if err != nil {
		return nil, false
	}
	return u, true
}

// currentUser returns the authenticated user set by requireAuth/optionalAuth,
// or nil for anonymous requests.
func currentUser(c echo.Context) *domain.User {
	u, _ := c.Get("user").(*domain.User)
	return u
}

// viewerID returns the authenticated user's id, or 0 for anonymous requests.
func viewerID(c echo.Context) int64 {
	if u := currentUser(c); u != nil {
		return u.ID
	}
	return 0
}

// rateLimitWrites throttles state-changing endpoints per client IP.
func (s *Server) rateLimitWrites(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.writeLimit.Allow(c.RealIP()) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "slow down")
		}
		return next(c)
	}
}

func (s *Server) setSessionToken(c echo.Context, token string) error {
	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyToken] = token
	return session.Save(c.Request(), c.Response().Writer)
}

func (s *Server) clearSession(c echo.Context) error {
	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Options.MaxAge = -1
	return session.Save(c.Request(), c.Response().Writer)
}
