package main

import (
	"context"
	"log"
	"os"
	"time"

	"fleet-core/pkg/binance"
	"fleet-core/pkg/config"
	"fleet-core/pkg/logger"
)

// api_check exercises the signed Binance futures endpoints the fleet depends
// on, without placing orders. Run it before pointing a live fleet at an
// account:
//
//	go run ./scripts/api_check
//
// Uses the same environment variables as the main binary:
//
//	BINANCE_API_KEY / BINANCE_API_SECRET / BINANCE_TESTNET
//	CHECK_SYMBOL (default "BTCUSDC")
func main() {
	log.Println("=== API check starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := logger.Init(cfg.Debug); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	symbol := os.Getenv("CHECK_SYMBOL")
	if symbol == "" {
		symbol = "BTCUSDC"
	}

	client := binance.NewClient(binance.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Public endpoints first; these fail on connectivity problems alone.
	price, err := client.TickerPrice(ctx, symbol)
	if err != nil {
		log.Fatalf("ticker price: %v", err)
	}
	log.Printf("ticker %s = %v", symbol, price)

	meta := binance.NewMetaCache(client, cfg.QuoteAsset, cfg.SymbolBlacklist)
	symbols := meta.TradableSymbols(ctx, 10)
	log.Printf("tradable %s pairs (first %d): %v", cfg.QuoteAsset, len(symbols), symbols)

	// Signed endpoints; these fail on bad or under-permissioned keys.
	total, available, err := client.TotalAndAvailableBalance(ctx)
	if err != nil {
		log.Fatalf("account balance: %v", err)
	}
	log.Printf("balance total=%.2f available=%.2f", total, available)

	safety, err := client.MarginSafety(ctx)
	if err != nil {
		log.Fatalf("margin safety: %v", err)
	}
	if safety.RatioValid {
		log.Printf("margin ratio = %.3f", safety.Ratio)
	} else {
		log.Println("margin ratio = n/a (no open positions)")
	}

	positions, err := client.PositionRisk(ctx, "")
	if err != nil {
		log.Fatalf("position risk: %v", err)
	}
	open := 0
	for _, p := range positions {
		if p.Amt() != 0 {
			open++
			log.Printf("open position %s amt=%v entry=%v lev=%vx", p.Symbol, p.Amt(), p.Entry(), p.Lev())
		}
	}
	log.Printf("open positions: %d", open)

	log.Println("=== API check passed ===")
}
