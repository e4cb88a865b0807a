package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-core/internal/api"
	"fleet-core/internal/coord"
	"fleet-core/internal/events"
	"fleet-core/internal/feed"
	"fleet-core/internal/notify"
	"fleet-core/internal/oracle"
	"fleet-core/internal/supervisor"
	"fleet-core/pkg/binance"
	"fleet-core/pkg/config"
	"fleet-core/pkg/db"
	"fleet-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := logger.Init(cfg.Debug); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	logger.Infof("fleet-core starting (quote=%s testnet=%v)", cfg.QuoteAsset, cfg.BinanceTestnet)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("db init failed: %v", err)
	}
	defer database.Close()

	journal, err := db.NewJournal(database)
	if err != nil {
		logger.Fatalf("journal schema failed: %v", err)
	}

	// Exchange access
	client := binance.NewClient(binance.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	meta := binance.NewMetaCache(client, cfg.QuoteAsset, cfg.SymbolBlacklist)
	prices := feed.NewManager(client, cfg.BinanceTestnet)

	// Fleet coordination
	registry := coord.NewRegistry()
	coordinator := coord.NewCoordinator()
	analyzer := oracle.NewAnalyzer(client, meta)
	bus := events.NewBus()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warnf("telegram disabled: %v", err)
		} else {
			notifier = tg
			logger.Infof("telegram notifications enabled")
		}
	}
	stopRelay := notify.Relay(bus, notifier)
	defer stopRelay()

	fleet := supervisor.New(supervisor.Deps{
		Client:      client,
		Meta:        meta,
		Feed:        prices,
		Registry:    registry,
		Coordinator: coordinator,
		Oracle:      analyzer,
		Bus:         bus,
		Journal:     journal,
	})

	if cfg.PresetPath != "" {
		if err := fleet.LoadPresets(cfg.PresetPath); err != nil {
			logger.Warnf("worker presets not loaded: %v", err)
		}
	}

	server := api.NewServer(fleet, journal, cfg.JWTSecret, cfg.AdminPasswordHash)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			logger.Fatalf("api server: %v", err)
		}
	}()
	logger.Infof("api listening on :%s", cfg.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infof("shutdown requested, stopping fleet")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		fleet.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		logger.Infof("fleet stopped cleanly")
	case <-shutdownCtx.Done():
		logger.Warnf("shutdown timed out, exiting anyway")
	}
}
