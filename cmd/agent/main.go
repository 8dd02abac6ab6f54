// The agent is a standalone producer: it serves a project directory as the
// object graph and keeps the relay synchronized, playing the same role as
// the editor plugin.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/config"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/logging"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/producer"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/project"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/tree"
)

// dirSource adapts the project root to the loop's Source.
type dirSource struct {
	dir string
}

func (s dirSource) Roots() ([]tree.Instance, error) {
	root, err := project.Root(s.dir)
	if err != nil {
		return nil, err
	}
	return root.Children()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Sync agent starting",
		"relay_url", cfg.RelayURL,
		"project_dir", cfg.ProjectDir,
		"interval", cfg.SyncInterval,
	)

	if _, err := project.Root(cfg.ProjectDir); err != nil {
		slog.Error("Cannot open project directory", "dir", cfg.ProjectDir, "error", err)
		os.Exit(1)
	}

	extractor := tree.NewExtractor(cfg.MaxDepth)
	transport := producer.NewTransport(cfg.RelayURL, cfg.RetryAttempts, cfg.RetryDelay, clock)
	loop := producer.NewLoop(dirSource{dir: cfg.ProjectDir}, extractor, producer.NewDeltaComputer(), transport, clock, cfg.SyncInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, stopping after current cycle")
		cancel()
	}()

	// File changes schedule a sync ahead of the interval timer.
	go func() {
		if err := project.Watch(ctx, cfg.ProjectDir, loop.Nudge); err != nil {
			slog.Warn("Project watcher unavailable, relying on interval timer", "error", err)
		}
	}()

	if err := loop.Run(ctx); err != nil {
		// Fail-stop: a persistently unreachable relay halts the loop
		// instead of retrying forever; restart the agent to resume.
		slog.Error("Sync agent halted", "error", err)
		os.Exit(1)
	}

	slog.Info("Sync agent stopped")
}
