// Package autobet optionally turns the strongest signals into live orders.
// Order signing and submission live behind the OrderPlacer interface; the
// strategist only decides when to pull the trigger.
package autobet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polysentry/polysentry/internal/bus"
	"github.com/polysentry/polysentry/internal/events"
)

// OrderPlacer submits one real order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, marketID, signal string, price, size decimal.Decimal) (orderID string, err error)
}

// Options tune the strategist.
type Options struct {
	Enabled  bool
	MinScore float64
	BetSize  decimal.Decimal
	Cooldown time.Duration
}

// Strategist is the TopicAnomaly subscriber that places auto-bets.
type Strategist struct {
	opts   Options
	placer OrderPlacer
	bus    bus.Bus

	mu      sync.Mutex
	lastBet map[string]time.Time

	now func() time.Time
}

func NewStrategist(opts Options, placer OrderPlacer, b bus.Bus) *Strategist {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Minute
	}
	return &Strategist{
		opts:    opts,
		placer:  placer,
		bus:     b,
		lastBet: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Handle evaluates one anomaly. Non-qualifying anomalies are skipped
// silently; a placed or failed order is announced on TopicBetPlaced.
func (s *Strategist) Handle(ctx context.Context, a events.AnomalyDetected) {
	if !s.opts.Enabled || s.placer == nil {
		return
	}

	signal := a.Details.String(events.DetailSignal)
	if signal != events.SignalBuyYes && signal != events.SignalBuyNo {
		return
	}
	score := a.Details.Float(events.DetailQualityScore)
	if score < s.opts.MinScore {
		return
	}
	price, ok := a.Details.FloatOK(events.DetailBuyPrice)
	if !ok || price <= 0 {
		return
	}

	if !s.claimCooldown(a.MarketID) {
		log.Debug().Str("market", a.MarketID).Msg("Auto-bet skipped: cooldown")
		return
	}

	bet := events.BetPlaced{
		MarketID:  a.MarketID,
		Question:  a.Details.String(events.DetailQuestion),
		Signal:    signal,
		Price:     decimal.NewFromFloat(price),
		Size:      s.opts.BetSize,
		Timestamp: s.now(),
	}

	orderID, err := s.placer.PlaceOrder(ctx, a.MarketID, signal, bet.Price, bet.Size)
	if err != nil {
		log.Error().Err(err).Str("market", a.MarketID).Msg("Auto-bet order failed")
		bet.Status = "failed"
		bet.Error = err.Error()
	} else {
		if orderID == "" {
			orderID = uuid.NewString()
		}
		bet.Status = "placed"
		bet.OrderID = orderID
		log.Info().Str("market", a.MarketID).Str("signal", signal).Str("order", orderID).Msg("🤖 Auto-bet placed")
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, events.TopicBetPlaced, bet); err != nil {
			log.Warn().Err(err).Msg("Failed to publish bet result")
		}
	}
}

// claimCooldown records the attempt and reports whether the market was
// outside its cooldown. Failed orders consume the cooldown too.
func (s *Strategist) claimCooldown(marketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if last, ok := s.lastBet[marketID]; ok && now.Sub(last) < s.opts.Cooldown {
		return false
	}
	s.lastBet[marketID] = now
	return true
}
