package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/iudanet/boardsync/internal/server/handlers"
	"github.com/iudanet/boardsync/internal/server/journal"
	"github.com/iudanet/boardsync/internal/server/middleware"
	"github.com/iudanet/boardsync/internal/server/presence"
	"github.com/iudanet/boardsync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Флаги сервера. Все политики протокола конфигурируются здесь,
	// в коде protocol-пакетов только дефолты.
	showVersion := flag.Bool("version", false, "Show version information")
	addr := flag.String("addr", ":8080", "Listen address")
	dbPath := flag.String("db", "boardsync.db", "Path to event journal database (empty disables journal)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	heartbeatInterval := flag.Duration("heartbeat-interval", presence.DefaultHeartbeatInterval, "Expected client heartbeat interval")
	timeoutMultiplier := flag.Int("timeout-multiplier", presence.DefaultTimeoutMultiplier, "Heartbeat timeout = interval * multiplier")
	sweepInterval := flag.Duration("sweep-interval", presence.DefaultSweepInterval, "Background sweep period")
	cursorStaleWindow := flag.Duration("cursor-stale-window", presence.DefaultCursorStaleWindow, "Cursor staleness window")
	maxLockHold := flag.Duration("max-lock-hold", presence.DefaultMaxLockHold, "Maximum edit lock hold time (0 disables)")

	rateLimit := flag.Int("rate-limit", 100, "Max REST requests per client per window")
	rateWindow := flag.Duration("rate-window", time.Minute, "Rate limit window")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Секрет токенов только из окружения, не из флагов:
	// флаги видны в ps.
	secret := os.Getenv("BOARDSYNC_JWT_SECRET")
	if secret == "" {
		logger.Error("BOARDSYNC_JWT_SECRET is not set")
		os.Exit(1)
	}

	if err := run(logger, config{
		addr:      *addr,
		dbPath:    *dbPath,
		secret:    []byte(secret),
		rateLimit: *rateLimit,
		rateWin:   *rateWindow,
		presence: presence.Config{
			HeartbeatInterval: *heartbeatInterval,
			TimeoutMultiplier: *timeoutMultiplier,
			SweepInterval:     *sweepInterval,
			CursorStaleWindow: *cursorStaleWindow,
			MaxLockHold:       *maxLockHold,
		},
	}); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

type config struct {
	addr      string
	dbPath    string
	secret    []byte
	rateLimit int
	rateWin   time.Duration
	presence  presence.Config
}

func run(logger *slog.Logger, cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Журнал событий опционален: без него протокол полностью рабочий,
	// пропадает только /history.
	var (
		sink    presence.EventSink
		history handlers.HistoryStorage
	)
	if cfg.dbPath != "" {
		store, err := sqlite.New(ctx, cfg.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open journal storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close journal storage", "error", err)
			}
		}()

		j := journal.New(store, logger)
		defer j.Close()
		sink = j
		history = store
	}

	registry := presence.NewRegistry(cfg.presence, logger, sink)
	defer registry.Close()

	sessionHandler := handlers.NewSessionHandler(logger, registry, history)
	adminHandler := handlers.NewAdminHandler(logger, registry)
	wsHandler := handlers.NewWSHandler(logger, registry)
	healthHandler := handlers.NewHealthHandler(logger, Version)

	limiter := middleware.NewRateLimiter(cfg.rateLimit, cfg.rateWin, logger)
	defer limiter.Stop()

	r := mux.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.LoggingWithSkip(logger, []string{"/api/v1/health"}))

	r.HandleFunc("/api/v1/health", healthHandler.Health).Methods(http.MethodGet)

	// Все сессионные поверхности за auth; rate limit только на REST,
	// websocket после установления не лимитируется.
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(logger, cfg.secret))

	rest := api.NewRoute().Subrouter()
	rest.Use(middleware.RateLimit(limiter))
	rest.HandleFunc("/sessions", sessionHandler.Create).Methods(http.MethodPost)
	rest.HandleFunc("/sessions/{sessionID}", sessionHandler.Snapshot).Methods(http.MethodGet)
	rest.HandleFunc("/sessions/{sessionID}/history", sessionHandler.History).Methods(http.MethodGet)
	rest.HandleFunc("/sessions/{sessionID}/locks/{resourceID}/release", adminHandler.ForceRelease).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{sessionID}/ws", wsHandler.Serve).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		logger.Info("boardsync server starting",
			"addr", cfg.addr,
			"version", Version,
			"heartbeat_interval", cfg.presence.HeartbeatInterval,
			"journal", cfg.dbPath != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func printVersion() {
	fmt.Printf("BoardSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
