package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polysentry/polysentry/internal/bus"
	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/marketcache"
)

const seenTradeLimit = 10000

// apiTrade is one record from the trade history service.
type apiTrade struct {
	ID              string  `json:"id"`
	TransactionHash string  `json:"transactionHash"`
	ConditionID     string  `json:"conditionId"`
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
}

// TradeScanner polls recent fills and publishes each one exactly once.
type TradeScanner struct {
	client   *resty.Client
	bus      bus.Bus
	interval time.Duration
	seen     *marketcache.SeenSet
	stopCh   chan struct{}
}

func NewTradeScanner(dataURL string, b bus.Bus, interval time.Duration) *TradeScanner {
	client := resty.New().
		SetBaseURL(dataURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second)

	return &TradeScanner{
		client:   client,
		bus:      b,
		interval: interval,
		seen:     marketcache.NewSeenSet(seenTradeLimit),
		stopCh:   make(chan struct{}),
	}
}

func (s *TradeScanner) Start(ctx context.Context) {
	go s.loop(ctx)
	log.Info().Dur("interval", s.interval).Msg("🐋 Trade scanner started")
}

func (s *TradeScanner) Stop() {
	close(s.stopCh)
}

func (s *TradeScanner) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.scanOnce(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *TradeScanner) scanOnce(ctx context.Context) {
	trades, err := s.fetchRecent(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Trade scan failed")
		return
	}

	for _, tr := range trades {
		key := tr.ID
		if key == "" {
			key = tr.TransactionHash
		}
		if key == "" || s.seen.Add(key) {
			continue
		}

		ev := events.Trade{
			MarketID:      tr.ConditionID,
			TraderAddress: tr.ProxyWallet,
			Side:          tr.Side,
			Size:          decimal.NewFromFloat(tr.Size),
			Price:         decimal.NewFromFloat(tr.Price),
			Timestamp:     time.Unix(tr.Timestamp, 0).UTC(),
		}
		if err := s.bus.Publish(ctx, events.TopicLargeTrade, ev); err != nil {
			log.Warn().Err(err).Str("market", ev.MarketID).Msg("Failed to publish trade")
		}
	}
}

func (s *TradeScanner) fetchRecent(ctx context.Context) ([]apiTrade, error) {
	var trades []apiTrade
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":     "200",
			"takerOnly": "true",
		}).
		SetResult(&trades).
		Get("/trades")
	if err != nil {
		return nil, fmt.Errorf("fetching trades: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching trades: status %d", resp.StatusCode())
	}
	return trades, nil
}
