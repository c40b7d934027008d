package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/novahub/nova-gateway/internal/agent"
	"github.com/novahub/nova-gateway/internal/cache"
	"github.com/novahub/nova-gateway/internal/capability"
	"github.com/novahub/nova-gateway/internal/channel"
	"github.com/novahub/nova-gateway/internal/channel/discord"
	"github.com/novahub/nova-gateway/internal/channel/telegram"
	"github.com/novahub/nova-gateway/internal/channel/webchat"
	"github.com/novahub/nova-gateway/internal/config"
	"github.com/novahub/nova-gateway/internal/history"
	"github.com/novahub/nova-gateway/internal/inference"
	"github.com/novahub/nova-gateway/internal/logging"
	"github.com/novahub/nova-gateway/internal/orchestrator"
	"github.com/novahub/nova-gateway/internal/router"
	"github.com/novahub/nova-gateway/internal/scheduler"
	"github.com/novahub/nova-gateway/internal/server"
	"github.com/novahub/nova-gateway/internal/tools"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := logging.WithComponent("main")
	logger.Info("Starting Nova-Gateway", "version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Inference client with tiered provider failover
	client, err := inference.NewClient(&cfg.Inference)
	if err != nil {
		logger.Error("Failed to create inference client", "error", err)
		os.Exit(1)
	}
	logger.Info("Inference client ready", "tiers", client.TierCount())

	// Capability registry with the built-in tools
	registry := capability.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		logger.Error("Failed to register builtin tools", "error", err)
		os.Exit(1)
	}
	dispatcher := capability.NewDispatcher(registry)
	logger.Info("Capabilities registered", "count", registry.Len())

	// Session history: Redis when configured, in-memory otherwise
	var store history.Store
	if cfg.History.RedisAddr != "" {
		redisStore, err := history.NewRedisStore(&cfg.History)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory history", "error", err)
			store = history.NewMemoryStore()
		} else {
			logger.Info("History store connected", "addr", cfg.History.RedisAddr)
			store = redisStore
		}
	} else {
		store = history.NewMemoryStore()
	}
	defer store.Close()

	contexts := router.NewContextStore(cfg.Context.MaxMessages)
	rt := router.New(&cfg.Router, dispatcher, client, contexts)

	orch, err := orchestrator.New(&cfg.Orchestrator, client, dispatcher, store)
	if err != nil {
		logger.Error("Failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	responseCache := cache.New(cfg.Cache.MaxEntries, cfg.Cache.GetTTL())
	pipeline := agent.NewPipeline(rt, orch, client, responseCache, store)

	// Housekeeping jobs
	sched, err := scheduler.New(contexts, rt.Limiter(), responseCache, cfg.Context.GetInactiveAfter())
	if err != nil {
		logger.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()

	// Channel adapters
	adapters := []channel.ChannelAdapter{}
	if cfg.Channels.Telegram.Enabled {
		adapters = append(adapters, telegram.NewTelegramAdapter(cfg.Channels.Telegram.Token, client))
	}
	if cfg.Channels.Discord.Enabled {
		adapters = append(adapters, discord.NewDiscordAdapter(cfg.Channels.Discord.Token))
	}
	if cfg.Channels.WebChat.Enabled {
		adapters = append(adapters, webchat.NewWebChatAdapter(cfg.Channels.WebChat.Port))
	}
	for _, adapter := range adapters {
		if err := adapter.Start(ctx); err != nil {
			logger.Error("Failed to start adapter", "adapter", adapter.Name(), "error", err)
			continue
		}
		go pipeline.Serve(ctx, adapter)
		logger.Info("Adapter started", "adapter", adapter.Name())
	}

	// HTTP server
	srv := server.New(cfg, pipeline, orch, client, registry, responseCache, contexts)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Gateway running", "host", cfg.Server.Host, "port", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, adapter := range adapters {
		if err := adapter.Stop(); err != nil {
			logger.Error("Failed to stop adapter", "adapter", adapter.Name(), "error", err)
		}
	}
	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	logger.Info("Shutdown complete")
}
