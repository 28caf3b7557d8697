package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"campaign-console/internal/auth"
	"campaign-console/internal/config"
	"campaign-console/internal/devbackend"
	"campaign-console/pkg/logger"
	"campaign-console/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.ValidateBackend(); err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, logger.Options{File: cfg.Observe.LogFile})
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// Redis is optional; without it the live-call cap is held in process.
	var limiter devbackend.Limiter = devbackend.NewMemoryLimiter()
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		limiter = utils.NewCallSlots(rdb, "", 0)
		log.Info("live-call cap backed by redis", "addr", addr)
	}

	store := devbackend.NewStore(nil)
	store.Seed()
	if cfg.Demo.Email != "" && cfg.Demo.Password != "" {
		if _, err := store.CreateUser("Demo Operator", cfg.Demo.Email, cfg.Demo.Password); err != nil {
			log.Warn("seed user not created", "err", err)
		}
	}

	srvImpl := devbackend.NewServer(store, authManager, devbackend.Options{
		MaxLiveCalls:  cfg.Backend.MaxLiveCalls,
		PublicURL:     cfg.Backend.PublicURL,
		SecureCookies: strings.HasPrefix(cfg.Backend.PublicURL, "https://"),
		Limiter:       limiter,
		Logger:        log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srvImpl.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("dev backend listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
