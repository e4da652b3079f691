package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Accounts
	s.echo.POST("/api/register", s.handleRegister, s.rateLimitWrites)
	s.echo.POST("/api/login", s.handleLogin, s.rateLimitWrites)
	s.echo.POST("/api/logout", s.handleLogout, s.requireAuth)

	// Submissions (authenticated)
	s.echo.POST("/api/submit", s.handleSubmit, s.requireAuth, s.rateLimitWrites)
	s.echo.POST("/api/editnews", s.handleEditNews, s.requireAuth)
	s.echo.POST("/api/delnews", s.handleDelNews, s.requireAuth)
	s.echo.POST("/api/votenews", s.handleVoteNews, s.requireAuth, s.rateLimitWrites)

	// Comments (authenticated)
	s.echo.POST("/api/postcomment", s.handlePostComment, s.requireAuth, s.rateLimitWrites)
	s.echo.POST("/api/editcomment", s.handleEditComment, s.requireAuth)
	s.echo.POST("/api/delcomment", s.handleDelComment, s.requireAuth)
	s.echo.POST("/api/votecomment", s.handleVoteComment, s.requireAuth, s.rateLimitWrites)

	// Listings (anonymous allowed; vote state hydrated when logged in)
	s.echo.GET("/api/news/top", s.handleTop, s.optionalAuth)
	s.echo.GET("/api/news/latest", s.handleLatest, s.optionalAuth)
	s.echo.GET("/api/news/:id", s.handleGetNews, s.optionalAuth)
	s.echo.GET("/api/news/:id/comments", s.handleGetComments, s.optionalAuth)
	s.echo.GET("/api/user/:username", s.handleUserProfile)

	// Per-user listings (authenticated)
	s.echo.GET("/api/saved", s.handleSaved, s.requireAuth)
	s.echo.GET("/api/posted", s.handlePosted, s.requireAuth)
}
