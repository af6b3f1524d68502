package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the pipeline.
type Config struct {
	// Broker
	RedisAddr     string
	RedisPassword string

	// Storage
	DatabaseDSN string

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// External APIs
	GammaAPIURL   string
	DataAPIURL    string
	CLOBAPIURL    string
	BinanceWSURL  string
	BinanceAPIURL string
	NewsFeeds     []string
	CryptoAssets  []string

	// Producer intervals
	MarketSyncInterval time.Duration
	BookScanInterval   time.Duration
	WhaleScanInterval  time.Duration
	NewsPollInterval   time.Duration

	// Alerting
	MinSeverity        float64
	DeduplicationMin   int
	MaxAlertsPerMinute int
	RateLimitFile      string

	// Paper trading
	StartingBalance decimal.Decimal
	TradesFile      string

	// Auto-bet
	AutoBetEnabled  bool
	AutoBetMinScore int
	AutoBetSize     decimal.Decimal
	AutoBetCooldown time.Duration

	// Mode
	Debug bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: getEnv("DATABASE_DSN", "data/polysentry.db"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		GammaAPIURL:   getEnv("GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		DataAPIURL:    getEnv("DATA_API_URL", "https://data-api.polymarket.com"),
		CLOBAPIURL:    getEnv("CLOB_API_URL", "https://clob.polymarket.com"),
		BinanceWSURL:  getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443"),
		BinanceAPIURL: getEnv("BINANCE_API_URL", "https://api.binance.com"),
		NewsFeeds:     getEnvList("NEWS_FEEDS", []string{}),
		CryptoAssets:  getEnvList("CRYPTO_ASSETS", []string{"BTC", "ETH", "SOL"}),

		MarketSyncInterval: getEnvDuration("MARKET_SYNC_INTERVAL", 60*time.Second),
		BookScanInterval:   getEnvDuration("BOOK_SCAN_INTERVAL", 30*time.Second),
		WhaleScanInterval:  getEnvDuration("WHALE_SCAN_INTERVAL", 30*time.Second),
		NewsPollInterval:   getEnvDuration("NEWS_POLL_INTERVAL", 5*time.Minute),

		MinSeverity:        getEnvFloat("MIN_SEVERITY", 0.3),
		DeduplicationMin:   getEnvInt("DEDUPLICATION_MINUTES", 15),
		MaxAlertsPerMinute: getEnvInt("MAX_ALERTS_PER_MINUTE", 10),
		RateLimitFile:      getEnv("RATE_LIMIT_FILE", "data/rate_limit.json"),

		StartingBalance: getEnvDecimal("STARTING_BALANCE", decimal.NewFromInt(1000)),
		TradesFile:      getEnv("TRADES_FILE", "data/paper_trades.json"),

		AutoBetEnabled:  getEnvBool("AUTOBET_ENABLED", false),
		AutoBetMinScore: getEnvInt("AUTOBET_MIN_SCORE", 75),
		AutoBetSize:     getEnvDecimal("AUTOBET_SIZE", decimal.NewFromInt(10)),
		AutoBetCooldown: getEnvDuration("AUTOBET_COOLDOWN", 30*time.Minute),

		Debug: getEnvBool("DEBUG", false),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
