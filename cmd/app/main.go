package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"marketcraft/internal/app"
	"marketcraft/internal/broadcast"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Pprof server (localhost only)
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap.Market.StartSimulation(ctx)
	slog.InfoContext(ctx, "price simulation loop started")

	if bootstrap.Config.Broadcast.Enabled {
		server := broadcast.NewServer(bootstrap.Market, slog.Default())
		go func() {
			if err := server.Start(ctx, bootstrap.Config.Broadcast.Addr); err != nil {
				slog.Error("broadcast server failed", slog.Any("error", err))
			}
		}()
	}

	slog.InfoContext(ctx, "market engine operational, press Ctrl+C to exit")
	<-ctx.Done()

	slog.Info("shutting down, flushing documents")
	bootstrap.Registry.Shutdown()
}
