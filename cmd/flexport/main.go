// Command flexport runs one player session: the local game engine, the save
// file, and (when a server is configured) the sync client.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jfuginay/flexport-cross-platform-game/internal/client"
	"github.com/jfuginay/flexport-cross-platform-game/internal/config"
	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/engine"
	"github.com/jfuginay/flexport-cross-platform-game/internal/entropy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
	"github.com/jfuginay/flexport-cross-platform-game/internal/leaderboard"
	"github.com/jfuginay/flexport-cross-platform-game/internal/market"
	"github.com/jfuginay/flexport-cross-platform-game/internal/persistence"
	"github.com/jfuginay/flexport-cross-platform-game/internal/progression"
	"github.com/jfuginay/flexport-cross-platform-game/internal/routes"
	"github.com/jfuginay/flexport-cross-platform-game/internal/singularity"
)

const autosaveInterval = 30 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("bad configuration", "error", err)
		os.Exit(1)
	}

	balance, err := config.LoadBalance(cfg.BalancePath)
	if err != nil {
		slog.Error("failed to load balance file", "path", cfg.BalancePath, "error", err)
		os.Exit(1)
	}

	playerID := cfg.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
		slog.Info("no player id configured, generated one", "player", playerID)
	}

	// ── Save file ─────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open save file", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("save file opened", "path", cfg.DBPath)

	// ── Game state ────────────────────────────────────────────────────
	bus := events.NewBus()
	emp := economy.NewEmpire(playerID, balance.StartingCash, balance.StartingCredit)
	tracker := progression.New(balance.Progression, emp, bus)
	registry := routes.NewRegistry(balance.Routes, balance.RouteSeed)
	mkt := market.New(balance.Market, cfg.Seed)
	sing := singularity.New(bus, balance.SingularityThresholds...)

	switch err := db.RestoreSession(emp, tracker); {
	case err == nil:
		// Reflect restored ownership into the local registry so offline
		// play sees it.
		for _, id := range emp.View().OwnedRoutes {
			registry.ForceOwner(id, playerID)
		}
	case errors.Is(err, persistence.ErrNoSave):
		slog.Info("no saved session, starting fresh", "player", playerID)
	default:
		slog.Error("failed to restore session", "error", err)
		os.Exit(1)
	}

	eng := engine.New(balance.Engine, engine.Deps{
		Empire:      emp,
		Market:      mkt,
		Routes:      registry,
		Progress:    tracker,
		Singularity: sing,
		Bus:         bus,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Sync client ───────────────────────────────────────────────────
	if cfg.ServerURL != "" {
		sync := client.New(client.Config{
			URL:               cfg.ServerURL,
			PlayerID:          playerID,
			Platform:          cfg.Platform,
			DialTimeout:       cfg.DialTimeout,
			HeartbeatInterval: cfg.HeartbeatInterval,
			ReconnectBase:     cfg.ReconnectBase,
			ReconnectCap:      cfg.ReconnectCap,
			Jitter:            entropy.NewLocked(entropy.NewSeeded(cfg.Seed)),
		}, eng, bus)
		eng.SetTransport(sync)
		go sync.Run(ctx)
		slog.Info("sync client enabled", "url", cfg.ServerURL)
	} else {
		slog.Info("no server configured, playing offline")
	}

	lb := leaderboard.NewClient(cfg.LeaderboardURL)
	if lb.Enabled() {
		slog.Info("leaderboard submissions enabled", "url", cfg.LeaderboardURL)
	}

	// ── Event log and autosave ────────────────────────────────────────
	go watchEvents(ctx, bus, eng)
	go autosave(ctx, db, emp, tracker)

	level, _ := emp.Progress()
	fmt.Printf("\nFlexport: player %s, level %d, $%.0f on hand.\n", playerID, level, emp.Balance())
	fmt.Println("Session running... (Ctrl+C to stop)")

	eng.Run(ctx)

	// ── Final save and score submission ───────────────────────────────
	slog.Info("final save...")
	if err := db.SaveSession(emp, tracker); err != nil {
		slog.Error("final save failed", "error", err)
	}
	lb.SubmitEmpire(emp.View(), cfg.Platform, emp.NetWorth(), sing.Progress())

	fmt.Println("Session stopped. Progress saved.")
}

// watchEvents logs notable progression and stops the engine when the
// singularity goes terminal.
func watchEvents(ctx context.Context, bus *events.Bus, eng *engine.Engine) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case events.LevelUp:
				slog.Info("level up", "level", e.Level, "unlocks", e.Unlocks)
			case events.AchievementUnlocked:
				slog.Info("achievement unlocked", "id", e.AchievementID, "rarity", e.Rarity)
			case events.SingularityPhase:
				slog.Info("singularity phase shift", "phase", e.Phase)
			case events.GameOver:
				slog.Info("game over", "reason", e.Reason)
				eng.Stop()
				return
			}
		}
	}
}

func autosave(ctx context.Context, db *persistence.DB, emp *economy.Empire, tracker *progression.Tracker) {
	ticker := time.NewTicker(autosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.SaveSession(emp, tracker); err != nil {
				slog.Error("autosave failed", "error", err)
			}
		}
	}
}
