// Polysentry - anomaly detection pipeline for Polymarket.
//
// The pipeline ingests market snapshots, trades, order books, news feeds and
// crypto spot prices; runs a suite of stateful detectors; scores each anomaly
// for quality; paper-trades qualified signals; and pushes alerts to Telegram.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polysentry/polysentry/internal/alert"
	"github.com/polysentry/polysentry/internal/autobet"
	"github.com/polysentry/polysentry/internal/bus"
	"github.com/polysentry/polysentry/internal/config"
	"github.com/polysentry/polysentry/internal/cron"
	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/feed"
	"github.com/polysentry/polysentry/internal/marketcache"
	"github.com/polysentry/polysentry/internal/paper"
	"github.com/polysentry/polysentry/internal/pipeline"
	"github.com/polysentry/polysentry/internal/storage"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Msg("🛰️ Polysentry starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Broker: Redis when reachable, in-process otherwise.
	var b bus.Bus
	if redisBus, err := bus.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, using in-process bus")
		b = bus.NewMemory()
	} else {
		b = redisBus
	}
	defer b.Close()

	db, err := storage.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	snapshots := marketcache.NewSnapshotCache()
	cryptoMarkets := marketcache.NewCryptoMarketCache()
	resolver := marketcache.NewNameResolver(snapshots, cfg.GammaAPIURL)

	engine := paper.NewEngine(cfg.TradesFile, cfg.StartingBalance)
	tracker := paper.NewTracker(engine, snapshots, 30*time.Second)

	var transport alert.Transport
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := alert.NewTelegramTransport(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect Telegram")
		}
		transport = tg
	} else {
		log.Warn().Msg("No Telegram credentials, alerts go to the log")
		transport = alert.LogTransport{}
	}

	dispatcher := alert.NewDispatcher(alert.Options{
		MinSeverity:        cfg.MinSeverity,
		DedupWindow:        time.Duration(cfg.DeduplicationMin) * time.Minute,
		MaxAlertsPerMinute: cfg.MaxAlertsPerMinute,
	}, alert.NewRateLimiter(cfg.RateLimitFile), resolver, engine, transport)

	if cfg.AutoBetEnabled {
		log.Warn().Msg("Auto-bet enabled but no order placer is configured, bets will be skipped")
	}
	strategist := autobet.NewStrategist(autobet.Options{
		Enabled:  cfg.AutoBetEnabled,
		MinScore: float64(cfg.AutoBetMinScore),
		BetSize:  cfg.AutoBetSize,
		Cooldown: cfg.AutoBetCooldown,
	}, nil, b)

	pipe := pipeline.New(b, snapshots, cryptoMarkets)
	if err := pipe.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start pipeline")
	}

	// Three independent anomaly subscribers: alerter, strategist, persister.
	mustSubscribe(ctx, b, events.TopicAnomaly, func(_ context.Context, a events.AnomalyDetected) {
		dispatcher.Handle(a)
	})
	mustSubscribe(ctx, b, events.TopicAnomaly, func(ctx context.Context, a events.AnomalyDetected) {
		strategist.Handle(ctx, a)
	})
	mustSubscribe(ctx, b, events.TopicAnomaly, func(_ context.Context, a events.AnomalyDetected) {
		if err := db.SaveAnomaly(a); err != nil {
			log.Warn().Err(err).Str("market", a.MarketID).Msg("Failed to persist anomaly")
		}
	})
	mustSubscribe(ctx, b, events.TopicBetPlaced, func(_ context.Context, bet events.BetPlaced) {
		if err := db.SaveBet(bet); err != nil {
			log.Warn().Err(err).Str("market", bet.MarketID).Msg("Failed to persist bet")
		}
	})

	// Producers.
	marketSync := feed.NewMarketSync(cfg.GammaAPIURL, b, cfg.MarketSyncInterval)
	marketSync.Start(ctx)
	defer marketSync.Stop()

	tradeScanner := feed.NewTradeScanner(cfg.DataAPIURL, b, cfg.WhaleScanInterval)
	tradeScanner.Start(ctx)
	defer tradeScanner.Stop()

	bookScanner := feed.NewBookScanner(cfg.CLOBAPIURL, pipe, b, cfg.BookScanInterval)
	bookScanner.Start(ctx)
	defer bookScanner.Stop()

	if len(cfg.NewsFeeds) > 0 {
		newsFetcher := feed.NewNewsFetcher(cfg.NewsFeeds, snapshots, b, cfg.NewsPollInterval)
		newsFetcher.Start(ctx)
		defer newsFetcher.Stop()
	}

	cryptoStream := feed.NewCryptoStream(cfg.BinanceWSURL, cfg.BinanceAPIURL, cfg.CryptoAssets, b)
	cryptoStream.Start(ctx)
	defer cryptoStream.Stop()

	tracker.Start()
	defer tracker.Stop()

	cronRunner := cron.NewRunner(engine, transport)
	if err := cronRunner.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start cron scheduler")
	}
	defer cronRunner.Stop()

	log.Info().Msg("✅ Polysentry running")
	<-ctx.Done()
	log.Info().Msg("👋 Shutting down")
}

// mustSubscribe wires a typed handler to a topic, exiting on failure since a
// missing subscription means a dead pipeline.
func mustSubscribe[T any](ctx context.Context, b bus.Bus, topic string, fn func(context.Context, T)) {
	err := b.Subscribe(ctx, topic, func(ctx context.Context, payload []byte) {
		var ev T
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping malformed event")
			return
		}
		fn(ctx, ev)
	})
	if err != nil {
		log.Fatal().Err(err).Str("topic", topic).Msg("Failed to subscribe")
	}
}
