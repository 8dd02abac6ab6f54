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

	"github.com/jonboulle/clockwork"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/config"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/hub"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/logging"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/server"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/store"
)

func runGracefulShutdown(cfg *config.Config, srv *server.Server, h *hub.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Stop accepting new connections before closing existing ones.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		h.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Relay starting", "env", cfg.AppEnv, "port", cfg.Port)

	h := hub.New(clock)
	st := store.New(clock, h, h)
	h.BindSource(st)

	srv := server.NewServer(cfg, st, h, clock)
	done := runGracefulShutdown(cfg, srv, h)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
