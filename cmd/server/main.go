package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"casegen/internal/app"
	"casegen/internal/config"
	"casegen/internal/ratelimit"
	"casegen/internal/server"
	"casegen/internal/util"
	"casegen/pkg/ai"
	"casegen/pkg/storage"
	"casegen/pkg/store"
	"casegen/pkg/usertoken"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	jwtTTL, err := config.ParseJWTTTL(cfg.JWTTTL)
	if err != nil {
		log.Fatalf("failed to parse JWT TTL: %v", err)
	}

	util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "error", err.Error())
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		util.Fatal("failed to init object storage", "error", err.Error())
	}
	tokens, err := usertoken.NewManager(usertoken.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    jwtTTL,
	}, usertoken.NewRedisRevoker(cfg.RedisAddr, cfg.RedisPassword))
	if err != nil {
		util.Fatal("failed to init token manager", "error", err.Error())
	}

	appCore := app.New(st, objects, ai.NewClient(cfg.GeneratorURL))

	httpServer := server.New(server.Config{
		App:             appCore,
		Tokens:          tokens,
		SignupLimiter:   newLimiter(cfg, "casegen:ratelimit:signup", cfg.SignupRateLimitPerMinute),
		LoginLimiter:    newLimiter(cfg, "casegen:ratelimit:login", cfg.LoginRateLimitPerMinute),
		GenerateLimiter: newLimiter(cfg, "casegen:ratelimit:generate", cfg.GenerateRateLimitPerMinute),
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Handler(),
		ReadTimeout: 30 * time.Second,
		// no WriteTimeout: chat streaming holds responses open for minutes
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		util.Fatal("server error", "error", err.Error())
	}
	slog.Info("server stopped")
}

func newLimiter(cfg config.FileConfig, prefix string, perMinute int) *ratelimit.Limiter {
	if perMinute <= 0 {
		return nil
	}
	limiter, err := ratelimit.New(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, time.Minute)
	if err != nil {
		util.Fatal("failed to init rate limiter", "prefix", prefix, "error", err.Error())
	}
	return limiter
}
