// Command flexportd runs the authoritative Flexport game server.
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

	"github.com/jfuginay/flexport-cross-platform-game/internal/config"
	"github.com/jfuginay/flexport-cross-platform-game/internal/server"
)

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

	slog.Info("Flexport authoritative server",
		"addr", cfg.Addr,
		"routes", len(balance.RouteSeed),
		"seed", cfg.Seed,
	)

	srv := server.New(balance, cfg.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.Run(ctx)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Flexport server listening on %s (Ctrl+C to stop)\n", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", "error", err)
		os.Exit(1)
	}

	fmt.Println("Server stopped.")
}
