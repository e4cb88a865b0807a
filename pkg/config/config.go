package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading fleet.
type Config struct {
	Port string

	// Binance USDT-M futures
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool

	// Instrument universe
	QuoteAsset      string   // pairs are filtered to this quote asset
	SymbolBlacklist []string // never traded or subscribed

	// Telegram notifications (optional)
	TelegramToken  string
	TelegramChatID int64

	// Operational API auth
	JWTSecret         string
	AdminPasswordHash string // bcrypt hash; empty disables login

	// Trade journal
	DBPath string

	// Worker presets loaded at startup (optional)
	PresetPath string

	Debug bool
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		BinanceTestnet:    getEnv("BINANCE_TESTNET", "false") == "true",
		QuoteAsset:        getEnv("QUOTE_ASSET", "USDC"),
		SymbolBlacklist:   splitAndTrim(getEnv("SYMBOL_BLACKLIST", "BTCUSDC,ETHUSDC")),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    getEnvInt64("TELEGRAM_CHAT_ID", 0),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		DBPath:            getEnv("DB_PATH", "./data/fleet.db"),
		PresetPath:        os.Getenv("WORKER_PRESETS"),
		Debug:             getEnv("DEBUG", "false") == "true",
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, strings.ToUpper(t))
		}
	}
	return out
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}
