package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campaign-console/internal/config"
	"campaign-console/internal/console"
	"campaign-console/internal/notify"
	"campaign-console/internal/playback"
	"campaign-console/internal/poller"
	"campaign-console/pkg/logger"
)

var release = "dev"

func main() {
	player := flag.String("player", "", `audio player command, e.g. "ffplay -nodisp -autoexit"`)
	flag.Parse()

	_ = godotenv.Load()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, logger.Options{File: cfg.Observe.LogFile})
	slog.SetDefault(log)

	hub, flush, err := notify.InitSentry(cfg.Observe.SentryDSN, cfg.App.Env, release)
	if err != nil {
		log.Error("sentry init failed", "err", err)
		os.Exit(1)
	}
	defer flush()

	opts := console.Options{
		Config: cfg,
		Logger: log,
		Hub:    hub,
		Sink: func(n notify.Notification) {
			fmt.Fprintf(os.Stderr, "! %s\n", n.Message)
		},
		OnCadence: func(c poller.Cadence) {
			log.Info("polling", "state", c.State, "campaign_id", c.CampaignID)
		},
	}
	if fields := strings.Fields(*player); len(fields) > 0 {
		opts.Player = playback.ExecPlayer{Command: fields[0], Args: fields[1:]}
	}

	app, err := console.New(opts)
	if err != nil {
		log.Error("console init failed", "err", err)
		os.Exit(1)
	}

	var metrics *http.Server
	if cfg.Observe.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{Addr: cfg.Observe.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "err", err)
			}
		}()
	}

	s := app.Start(rootCtx)
	log.Info("console started", "api", cfg.API.BaseURL, "authenticated", s.Authenticated, "mode", s.Mode, "degraded", s.Degraded)

	sh := &shell{app: app, out: os.Stdout}
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	sh.prompt()
loop:
	for {
		select {
		case <-rootCtx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !sh.exec(rootCtx, line) {
				break loop
			}
			sh.prompt()
		}
	}

	log.Info("shutdown initiated")
	app.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metrics != nil {
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown failed", "err", err)
		}
	}
	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
