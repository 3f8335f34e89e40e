package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/lpwatch/internal/crawler"
	"github.com/rewired-gh/lpwatch/internal/logger"
	"github.com/rewired-gh/lpwatch/internal/metadata"
	"github.com/rewired-gh/lpwatch/internal/metrics"
	"github.com/rewired-gh/lpwatch/internal/monitor"
	"github.com/rewired-gh/lpwatch/internal/storage"
	"github.com/rewired-gh/lpwatch/internal/telegram"
	"github.com/rewired-gh/lpwatch/internal/watchlist"
)

var version = "dev"

func main() {
	if err := NewCli(version).Run(os.Args); err != nil {
		logger.Fatal("%v", err)
	}
}

func runWatcher(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded")

	if cfg.RPC.URL == "" {
		logger.Warn("rpc.url is not set, metadata lookups and crawling will fail until it is configured")
	}
	client := rpc.NewWithCustomRPCClient(rpc.NewWithLimiter(cfg.RPC.URL, rate.Limit(cfg.RPC.RequestsPerSecond), cfg.RPC.Burst))

	m := metrics.New(cfg.Metrics.Namespace)

	var resolver monitor.Resolver = metadata.NewResolver(client)
	var cache *metadata.CachedResolver
	if cfg.Metadata.CacheEnabled {
		cache, err = metadata.NewCachedResolver(metadata.NewResolver(client), metadata.CacheConfig{
			MaxEntries:  cfg.Metadata.CacheMaxEntries,
			TTL:         cfg.Metadata.CacheTTL,
			NegativeTTL: cfg.Metadata.NegativeTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to create metadata cache: %w", err)
		}
		defer cache.Close()
		resolver = cache
	}

	telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, telegram.Options{
		ParseMode:           cfg.Telegram.ParseMode,
		GlobalRate:          cfg.Telegram.GlobalRate,
		PrivateChatInterval: cfg.Telegram.PrivateChatInterval,
		GroupChatPerMinute:  cfg.Telegram.GroupChatPerMinute,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	logger.Info("Telegram client initialized successfully")

	wl := watchlist.Load(cfg.Filter.WatchlistPath)
	if cfg.Filter.ClientAccountFiltering && wl.Len() == 0 {
		logger.Warn("Client account filtering is enabled but the watchlist is empty, nothing will be reported")
	}

	mon := monitor.New(wl, resolver, telegramClient, m, monitor.Config{
		ClientAccountFiltering: cfg.Filter.ClientAccountFiltering,
	})

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	crawl := crawler.New(client, store, mon.Process, m, crawler.Config{
		ProgramID:             solana.MustPublicKeyFromBase58(cfg.Crawler.ProgramID),
		BatchLimit:            cfg.Crawler.BatchLimit,
		PollInterval:          cfg.Crawler.PollInterval,
		Commitment:            rpc.CommitmentType(cfg.Crawler.Commitment),
		MaxConcurrentRequests: cfg.Crawler.MaxConcurrentRequests,
	})

	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	if cfg.Telegram.Commands {
		telegramClient.ListenForCommands(ctx, func() string {
			return statusText(mon, cache, cfg.Filter.ClientAccountFiltering)
		})
	}

	logger.Info("Starting crawler (program: %s, interval: %v, batch: %d, commitment: %s)",
		cfg.Crawler.ProgramID,
		cfg.Crawler.PollInterval,
		cfg.Crawler.BatchLimit,
		cfg.Crawler.Commitment,
	)
	return crawl.Run(ctx)
}

func statusText(mon *monitor.Monitor, cache *metadata.CachedResolver, filtering bool) string {
	stats := mon.Stats()
	text := fmt.Sprintf("Watching %d LP wallets (filtering %s)\nInstructions processed: %d\nNotifications sent: %d",
		mon.WatchlistSize(), onOff(filtering), stats.Processed, stats.Notified)
	if cache != nil {
		hits, misses := cache.Stats()
		text += fmt.Sprintf("\nMetadata cache: %d hits, %d misses", hits, misses)
	}
	return text
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
