// Package server exposes the engine over a thin JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kindlingnews/kindling/internal/app"
	"github.com/kindlingnews/kindling/internal/config"
	"github.com/kindlingnews/kindling/internal/errors"
)

const (
	sessionName     = "kindling_session"
	sessionKeyToken = "auth_token"

	sessionMaxAgeDays = 30
)

type Server struct {
	echo         *echo.Echo
	config       *config.Config
	app          *app.Service
	sessionStore *sessions.CookieStore
	// redisClient is nil when running on the memory backend; readiness then
	// only checks process liveness.
	redisClient *goredis.Client
	writeLimit  *RequestRateLimiter
	startTime   time.Time
}

func NewServer(cfg *config.Config, service *app.Service, redisClient *goredis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(errors.Middleware())

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * sessionMaxAgeDays,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          service,
		sessionStore: sessionStore,
		redisClient:  redisClient,
		writeLimit:   NewRequestRateLimiter(2.0, 10),
		startTime:    time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
