package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"planet-chat/auth"
	"planet-chat/domain"
	"planet-chat/internal"
	"planet-chat/lifecycle"
	"planet-chat/presence"
	"planet-chat/repositories"
	"planet-chat/runtime"
	"planet-chat/runtime/workers"
	"planet-chat/search"
	"planet-chat/server"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of calling os.Exit directly ensures all 'defer' statements
// (database cleanup, index flush) execute before the program exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Repositories & Search
	messageRepository := repositories.NewMessageRepository(db, logger, config.PageSize)
	roomRepository := repositories.NewRoomRepository(db)
	macroRepository := repositories.NewMacroSetRepository(db)
	index := search.NewIndex(blugeWriter, logger)

	// 4. Supervision & Orchestration
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(
		logger, sup, registry,
		messageRepository,
		config.NumberOfWorkers, config.BufferSize,
		config.SinkTimeout,
		charReplacement,
	)
	orchestrator.Add(index)

	// 5. Presence & Lifecycle
	directory := presence.NewDirectory()
	presenceRegistry := presence.NewRegistry(logger, roomRepository, directory.Resolve,
		config.PresenceLeaseTTL, orchestrator.Publish)
	sup.Add(presence.NewJanitor(presenceRegistry, config.JanitorInterval, logger))

	lifecycleService := lifecycle.NewService(logger, roomRepository, messageRepository,
		lifecycle.UnmeteredLedger{Log: logger},
		func(cmd domain.PostMessageCommand) { orchestrator.Dispatch(cmd) },
		orchestrator.Publish)

	// 6. Auth & WebSocket surface
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	chatServer := server.NewChatServer(logger, orchestrator, presenceRegistry, lifecycleService,
		roomRepository, messageRepository, macroRepository, index, directory, tokens,
		server.Config{
			PageSize:       config.PageSize,
			IdleDelay:      config.IdleMacroDelay,
			AllowedOrigins: config.Origins(),
		})

	if config.DebugPort > 0 {
		url := fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort)
		logger.Info("Debug store inspector available", "url", url)
		internal.StartDebugServer(db, config.DebugPort, internal.DefaultMapper, func() map[string]any {
			return internal.SelfStats(map[string]any{
				"sessions": chatServer.SessionCount(),
			})
		})
	}

	// 7. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Error (HTTP & Orchestrator)
	errChan := make(chan error, 2)

	// 8. Start the Engine (Workers, Censor, Fanout, Janitor)
	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 9. WebSocket endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", chatServer.ServeWS)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: mux}

	go func() {
		logger.Info("Starting WebSocket server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 10. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 11. Final Cleanup (Graceful Shutdown)
	// Active connections get a short grace period while workers drain their channels.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
