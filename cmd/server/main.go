package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Alvaro1251/Learnify/internal/config"
	"github.com/Alvaro1251/Learnify/internal/database"
	"github.com/Alvaro1251/Learnify/internal/handlers"
	"github.com/Alvaro1251/Learnify/internal/logging"
	"github.com/Alvaro1251/Learnify/internal/middleware"
	"github.com/Alvaro1251/Learnify/internal/routes"
	"github.com/Alvaro1251/Learnify/internal/services"
	"github.com/Alvaro1251/Learnify/pkg/auth"
)

func main() {
	// Load env
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if envErr != nil {
		log.Info("no .env file found, using process environment")
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	mongo, err := database.Connect(cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		return fmt.Errorf("connect MongoDB: %w", err)
	}
	defer func() {
		if err := mongo.Disconnect(); err != nil {
			log.Warn("MongoDB disconnect failed", zap.Error(err))
		}
	}()

	rdb, err := database.ConnectRedis(cfg.RedisURI, log)
	if err != nil {
		return fmt.Errorf("connect Redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	users := services.NewUserService(mongo.DB, services.NewCacheService(rdb), log)
	groups := services.NewGroupService(mongo.DB, users, log)
	posts := services.NewPostService(mongo.DB, users, log)
	authSvc := services.NewAuthService(users, auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration), services.NewTokenRevoker(rdb), log)
	registry := services.NewConnectionRegistry(log)
	history := services.NewChatHistoryCache(groups, rdb, log)
	chat := services.NewChatService(history, users, registry, log, cfg.DBTimeout)

	idxCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := users.EnsureIndexes(idxCtx); err != nil {
		log.Warn("failed to ensure user indexes", zap.Error(err))
	}
	if err := groups.EnsureIndexes(idxCtx); err != nil {
		log.Warn("failed to ensure study group indexes", zap.Error(err))
	}
	if err := posts.EnsureIndexes(idxCtx); err != nil {
		log.Warn("failed to ensure post indexes", zap.Error(err))
	}
	cancel()

	checks := map[string]handlers.HealthCheck{
		"mongo": func(ctx context.Context) error { return mongo.Ping(ctx, cfg.DBTimeout) },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	h := handlers.New(handlers.Deps{
		Config:   cfg,
		Logger:   log,
		Auth:     authSvc,
		Authn:    authSvc,
		Users:    users,
		Groups:   groups,
		Posts:    posts,
		History:  history,
		Chat:     chat,
		Registry: registry,
		Checks:   checks,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Production: SecurityHeaders → per-IP limiter, stricter limiter on sign-in.
	// Non-production: Redis window limiter when Redis is configured.
	var loginLimit func(http.Handler) http.Handler
	if cfg.IsProduction() {
		sec := middleware.NewProductionSecurity(cfg.TrustProxy)
		defer sec.Stop()
		for _, mw := range sec.Middlewares() {
			r.Use(mw)
		}
		loginLimit = sec.Login.Handler
		log.Info("production security enabled")
	} else {
		r.Use(middleware.NewRedisRateLimiter(rdb, cfg.TrustProxy, log).Handler)
	}

	routes.SetupRoutes(r, h, authSvc, loginLimit)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	// Hijacked WebSocket connections are not tracked by http.Server.
	registry.Shutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
