// Package feed contains the inbound producers: periodic REST pollers and the
// crypto WebSocket worker. Each producer publishes raw events to the bus and
// keeps no detection logic of its own.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/polysentry/polysentry/internal/bus"
	"github.com/polysentry/polysentry/internal/events"
)

const marketPageSize = 100

// gammaMarket is the subset of the metadata API response we read.
type gammaMarket struct {
	ConditionID   string `json:"conditionId"`
	Question      string `json:"question"`
	OutcomePrices string `json:"outcomePrices"` // JSON-encoded string array
	ClobTokenIDs  string `json:"clobTokenIds"`  // JSON-encoded string array
	Volume24h     string `json:"volume24hr"`
	Liquidity     string `json:"liquidity"`
	EndDate       string `json:"endDate"`
	Category      string `json:"category"`
	Events        []struct {
		Slug string `json:"slug"`
	} `json:"events"`
}

// MarketSync polls the market metadata service, publishes a snapshot per
// market and a price-change event whenever the YES price moved since the
// previous poll.
type MarketSync struct {
	client   *resty.Client
	breaker  *gobreaker.CircuitBreaker
	bus      bus.Bus
	interval time.Duration

	mu        sync.Mutex
	lastPrice map[string]decimal.Decimal

	stopCh chan struct{}
}

func NewMarketSync(gammaURL string, b bus.Bus, interval time.Duration) *MarketSync {
	client := resty.New().
		SetBaseURL(gammaURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gamma-markets",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &MarketSync{
		client:    client,
		breaker:   breaker,
		bus:       b,
		interval:  interval,
		lastPrice: make(map[string]decimal.Decimal),
		stopCh:    make(chan struct{}),
	}
}

func (s *MarketSync) Start(ctx context.Context) {
	go s.loop(ctx)
	log.Info().Dur("interval", s.interval).Msg("📡 Market sync started")
}

func (s *MarketSync) Stop() {
	close(s.stopCh)
}

func (s *MarketSync) loop(ctx context.Context) {
	s.syncOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.syncOnce(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *MarketSync) syncOnce(ctx context.Context) {
	markets, err := s.fetchAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Market sync failed")
		return
	}

	published := 0
	for _, gm := range markets {
		snap, ok := toSnapshot(gm)
		if !ok {
			continue
		}
		if err := s.bus.Publish(ctx, events.TopicMarketSnapshot, snap); err != nil {
			log.Warn().Err(err).Str("market", snap.MarketID).Msg("Failed to publish snapshot")
			continue
		}
		published++
		s.publishPriceChange(ctx, snap)
	}
	log.Debug().Int("markets", published).Msg("Market sync complete")
}

func (s *MarketSync) publishPriceChange(ctx context.Context, snap events.MarketSnapshot) {
	s.mu.Lock()
	prev, seen := s.lastPrice[snap.MarketID]
	s.lastPrice[snap.MarketID] = snap.YesPrice
	s.mu.Unlock()

	if !seen || prev.Equal(snap.YesPrice) || !prev.IsPositive() {
		return
	}
	change := snap.YesPrice.Sub(prev).Div(prev).InexactFloat64() * 100
	pc := events.PriceChange{
		MarketID:      snap.MarketID,
		Question:      snap.Question,
		OldPrice:      prev,
		NewPrice:      snap.YesPrice,
		ChangePercent: change,
		Timestamp:     snap.Timestamp,
	}
	if err := s.bus.Publish(ctx, events.TopicPriceChange, pc); err != nil {
		log.Warn().Err(err).Str("market", snap.MarketID).Msg("Failed to publish price change")
	}
}

func (s *MarketSync) fetchAll(ctx context.Context) ([]gammaMarket, error) {
	var all []gammaMarket
	for offset := 0; ; offset += marketPageSize {
		page, err := s.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < marketPageSize {
			return all, nil
		}
	}
}

func (s *MarketSync) fetchPage(ctx context.Context, offset int) ([]gammaMarket, error) {
	out, err := s.breaker.Execute(func() (any, error) {
		var page []gammaMarket
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"active": "true",
				"closed": "false",
				"limit":  strconv.Itoa(marketPageSize),
				"offset": strconv.Itoa(offset),
			}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("fetching markets page %d: %w", offset, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetching markets page %d: status %d", offset, resp.StatusCode())
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]gammaMarket), nil
}

// toSnapshot converts an API record, skipping malformed ones.
func toSnapshot(gm gammaMarket) (events.MarketSnapshot, bool) {
	if gm.ConditionID == "" || gm.Question == "" {
		return events.MarketSnapshot{}, false
	}
	yes, no, ok := parsePriceArray(gm.OutcomePrices)
	if !ok {
		log.Warn().Str("market", gm.ConditionID).Msg("Skipping market with malformed outcome prices")
		return events.MarketSnapshot{}, false
	}

	snap := events.MarketSnapshot{
		MarketID:  gm.ConditionID,
		Question:  gm.Question,
		YesPrice:  yes,
		NoPrice:   no,
		Volume24h: parseDecimal(gm.Volume24h),
		Liquidity: parseDecimal(gm.Liquidity),
		Category:  gm.Category,
		Timestamp: time.Now(),
	}
	if len(gm.Events) > 0 {
		snap.EventSlug = gm.Events[0].Slug
	}
	if gm.EndDate != "" {
		if end, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
			snap.EndDate = &end
		}
	}
	if yesTok, noTok, ok := parseTokenArray(gm.ClobTokenIDs); ok {
		snap.YesTokenID = yesTok
		snap.NoTokenID = noTok
	}
	return snap, true
}

// parsePriceArray decodes the doubly-encoded outcome price pair, e.g.
// "[\"0.35\", \"0.65\"]".
func parsePriceArray(raw string) (yes, no decimal.Decimal, ok bool) {
	var prices []string
	if err := json.Unmarshal([]byte(raw), &prices); err != nil || len(prices) < 2 {
		return decimal.Zero, decimal.Zero, false
	}
	yes, err := decimal.NewFromString(prices[0])
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	no, err = decimal.NewFromString(prices[1])
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	return yes, no, true
}

func parseTokenArray(raw string) (yes, no string, ok bool) {
	var tokens []string
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil || len(tokens) < 2 {
		return "", "", false
	}
	return tokens[0], tokens[1], true
}

func parseDecimal(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
