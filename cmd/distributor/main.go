package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/config"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/fanout"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/fanout/channel"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/fanout/channel/provider"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/shared"
)

func main() {
	// Parse command-line flags with environment variable fallbacks
	cfg := &config.DistributorConfig{}
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis server address for the distribution bus")
	flag.Parse()

	// Set up structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("Starting notification distributor", "redis_addr", cfg.RedisAddr)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Initialize the distribution bus
	slog.Info("Connecting to distribution bus", "addr", cfg.RedisAddr)
	bus, err := fanout.NewRedisBus(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Failed to connect to distribution bus", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis'")
		os.Exit(1)
	}
	defer bus.Close()

	// Register channel senders: webhooks plus email with provider fallback
	emailProviders := provider.NewRegistry(
		provider.NewResendProvider(),
		provider.NewSESProvider(),
	)

	senders := channel.NewRegistry()
	senders.Register(channel.NewWebhookSender())
	senders.Register(channel.NewEmailSender(emailProviders))
	slog.Info("Registered channel senders", "types", senders.List())

	// Main delivery loop
	dispatcher := fanout.NewDispatcher(bus, senders)
	if err := dispatcher.Run(ctx); err != nil {
		slog.Error("Notification dispatch failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Notification distributor stopped")
}
