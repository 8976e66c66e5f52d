package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/tigasdev/signaling/internal/config"
	"github.com/tigasdev/signaling/internal/httpserver"
	"github.com/tigasdev/signaling/internal/metrics"
	"github.com/tigasdev/signaling/internal/signaling"
	"github.com/tigasdev/signaling/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildVersion = ""
	buildCommit  = ""
	buildTime    = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting signaling-server",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"allowed_origins", len(cfg.AllowedOrigins),
		"max_message_bytes", cfg.MaxMessageBytes,
		"max_messages_per_second", cfg.MaxMessagesPerSecond,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"ws_ping_interval", cfg.WSPingInterval,
		"ice_servers", len(cfg.ICEServers),
		"turn_rest_enabled", cfg.TurnREST.Enabled(),
	)

	if cfg.Mode == config.ModeProd && len(cfg.AllowedOrigins) == 0 {
		logger.Warn("no ALLOWED_ORIGINS configured; cross-origin browsers will be rejected")
	}

	m := metrics.New()

	var turnGen *turnrest.Generator
	if cfg.TurnREST.Enabled() {
		turnGen, err = turnrest.NewGenerator(turnrest.Config{
			SharedSecret:   cfg.TurnREST.SharedSecret,
			TTLSeconds:     cfg.TurnREST.TTLSeconds,
			UsernamePrefix: cfg.TurnREST.UsernamePrefix,
			Realm:          cfg.TurnREST.Realm,
		})
		if err != nil {
			logger.Error("failed to configure TURN REST credentials", "err", err)
			os.Exit(2)
		}
	}

	ws := signaling.NewServer(cfg, logger, m)

	build := resolveBuildInfo()
	srv := httpserver.New(cfg, logger, build, httpserver.Options{
		Stats:   ws.Engine().Stats,
		Metrics: metrics.PrometheusHandler(m),
		TURN:    turnGen,
	})
	srv.Mux().Handle("GET /ws", ws)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		ws.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are outside http.Server.Shutdown's
	// remit; close them first so clients see a going-away frame.
	ws.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo() httpserver.BuildInfo {
	version, commit, buildTime := buildVersion, buildCommit, buildTime
	// Prefer ldflags-injected values (production builds) but fall back to
	// the Go build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		if version == "" {
			version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}
	return httpserver.BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}
