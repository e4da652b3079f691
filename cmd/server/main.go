package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kindlingnews/kindling/internal/app"
	"github.com/kindlingnews/kindling/internal/comments"
	"github.com/kindlingnews/kindling/internal/config"
	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/karma"
	"github.com/kindlingnews/kindling/internal/logging"
	"github.com/kindlingnews/kindling/internal/memstore"
	"github.com/kindlingnews/kindling/internal/rank"
	"github.com/kindlingnews/kindling/internal/redis"
	"github.com/kindlingnews/kindling/internal/server"
	"github.com/kindlingnews/kindling/internal/vote"
)

type stores struct {
	items    domain.ItemRepository
	users    domain.UserRepository
	comments domain.CommentStore
	// redisClient is nil on the memory backend.
	redisClient *goredis.Client
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStores(cfg *config.Config, clock clockwork.Clock) stores {
	if cfg.StoreBackend == "memory" {
		slog.Warn("Using in-memory store backend, data will not survive restarts")
		mem := memstore.New(clock)
		return stores{items: mem.Items(), users: mem.Users(), comments: mem.Comments()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return stores{
		items:       redis.NewItemRepo(client),
		users:       redis.NewUserRepo(client),
		comments:    redis.NewCommentStore(client),
		redisClient: client,
	}
}

func runGracefulShutdown(srv *server.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "backend", cfg.StoreBackend)

	st := setupStores(cfg, clock)
	if st.redisClient != nil {
		defer func() { _ = st.redisClient.Close() }()
	}

	ranker := rank.NewEngine(st.items, clock, rank.DefaultConfig())
	account := karma.NewAccount(st.users, clock, karma.DefaultConfig())
	ledger := vote.NewLedger(st.items, st.users, st.comments, ranker, account, clock, vote.DefaultConfig())
	tree := comments.NewTree(st.comments, nil, clock, comments.DefaultConfig())

	service := app.NewService(st.items, st.users, ranker, ledger, tree, account, clock, app.DefaultConfig())

	srv := server.NewServer(cfg, service, st.redisClient)
	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
