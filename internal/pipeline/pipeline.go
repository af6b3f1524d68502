// Package pipeline wires the inbound streams to the detector suite, enriches
// every signal-bearing anomaly with a quality score, and fans the result out
// on the anomaly topic.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polysentry/polysentry/internal/bus"
	"github.com/polysentry/polysentry/internal/detector"
	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/fairvalue"
	"github.com/polysentry/polysentry/internal/feed"
	"github.com/polysentry/polysentry/internal/marketcache"
	"github.com/polysentry/polysentry/internal/quality"
)

const (
	signalWindow  = time.Hour
	signalCap     = 5
	catalystTTL   = time.Hour
	marketBaseURL = "https://polymarket.com/event/"
)

// Pipeline consumes the five inbound streams and produces AnomalyDetected.
type Pipeline struct {
	bus bus.Bus

	snapshots     *marketcache.SnapshotCache
	cryptoMarkets *marketcache.CryptoMarketCache

	priceSpike  *detector.PriceSpikeDetector
	volumeSpike *detector.VolumeSpikeDetector
	whale       *detector.WhaleDetector
	imbalance   *detector.OrderBookImbalanceDetector
	spread      *detector.SpreadDetector
	divergence  *detector.MarketDivergenceDetector
	news        *detector.NewsImpactDetector
	crypto      *detector.CryptoDivergenceDetector

	mu        sync.Mutex
	signals   map[string][]time.Time
	catalysts map[string]catalyst

	now func() time.Time
}

type catalyst struct {
	headline string
	at       time.Time
}

func New(b bus.Bus, snapshots *marketcache.SnapshotCache, cryptoMarkets *marketcache.CryptoMarketCache) *Pipeline {
	return &Pipeline{
		bus:           b,
		snapshots:     snapshots,
		cryptoMarkets: cryptoMarkets,
		priceSpike:    detector.NewPriceSpike(),
		volumeSpike:   detector.NewVolumeSpike(),
		whale:         detector.NewWhale(),
		imbalance:     detector.NewOrderBookImbalance(),
		spread:        detector.NewSpread(),
		divergence:    detector.NewMarketDivergence(),
		news:          detector.NewNewsImpact(),
		crypto:        detector.NewCryptoDivergence(),
		signals:       make(map[string][]time.Time),
		catalysts:     make(map[string]catalyst),
		now:           time.Now,
	}
}

// Start subscribes every stream consumer.
func (p *Pipeline) Start(ctx context.Context) error {
	subs := map[string]bus.Handler{
		events.TopicMarketSnapshot: decode(p.handleSnapshot),
		events.TopicPriceChange:    decode(p.handlePriceChange),
		events.TopicLargeTrade:     decode(p.handleTrade),
		events.TopicOrderBook:      decode(p.handleOrderBook),
		events.TopicNews:           decode(p.handleNews),
		events.TopicCryptoPrice:    decode(p.handleCryptoPrice),
	}
	for topic, h := range subs {
		if err := p.bus.Subscribe(ctx, topic, h); err != nil {
			return err
		}
	}
	log.Info().Msg("🔍 Detector pipeline started")
	return nil
}

// decode adapts a typed handler to the bus payload. Malformed payloads are
// logged and skipped; the stream stays alive.
func decode[T any](fn func(context.Context, T)) bus.Handler {
	return func(ctx context.Context, payload []byte) {
		var ev T
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed event")
			return
		}
		fn(ctx, ev)
	}
}

func (p *Pipeline) handleSnapshot(ctx context.Context, snap events.MarketSnapshot) {
	p.snapshots.Put(snap)
	p.indexCryptoMarket(snap)

	p.emit(ctx, p.volumeSpike.Process(snap))
	p.emit(ctx, p.divergence.CheckNearResolution(snap))
	p.emit(ctx, p.divergence.CheckPriceSum(snap))
	p.compareRelated(ctx, snap)
}

// indexCryptoMarket registers markets whose question parses as a crypto
// price question, keyed by asset symbol.
func (p *Pipeline) indexCryptoMarket(snap events.MarketSnapshot) {
	match := fairvalue.ParseQuestion(snap.Question, p.now())
	if match == nil {
		return
	}
	if match.ExpiryDate == nil && snap.EndDate != nil {
		match.ExpiryDate = snap.EndDate
	}
	p.cryptoMarkets.Put(snap, *match)
}

// compareRelated checks the snapshot against other markets on the same
// asset, target and direction.
func (p *Pipeline) compareRelated(ctx context.Context, snap events.MarketSnapshot) {
	match := fairvalue.ParseQuestion(snap.Question, p.now())
	if match == nil {
		return
	}
	for _, other := range p.cryptoMarkets.BySymbol(match.Symbol) {
		if other.Snapshot.MarketID == snap.MarketID {
			continue
		}
		if !other.Match.TargetPrice.Equal(match.TargetPrice) || other.Match.IsAbove != match.IsAbove {
			continue
		}
		p.emit(ctx, p.divergence.CompareMarkets(snap, other.Snapshot))
	}
}

func (p *Pipeline) handlePriceChange(ctx context.Context, pc events.PriceChange) {
	p.emit(ctx, p.priceSpike.Process(pc))
}

func (p *Pipeline) handleTrade(ctx context.Context, tr events.Trade) {
	p.emit(ctx, p.whale.Process(tr))
}

func (p *Pipeline) handleOrderBook(ctx context.Context, ob events.OrderBook) {
	p.emit(ctx, p.imbalance.Process(ob))
	p.emit(ctx, p.spread.Process(ob))
}

func (p *Pipeline) handleNews(ctx context.Context, item events.NewsItem) {
	a := p.news.Process(item)
	if a != nil {
		p.recordCatalyst(item)
	}
	p.emit(ctx, a)
}

func (p *Pipeline) handleCryptoPrice(ctx context.Context, price events.CryptoPrice) {
	for _, entry := range p.cryptoMarkets.BySymbol(price.Symbol) {
		p.emit(ctx, p.crypto.Process(price, entry))
	}
}

func (p *Pipeline) recordCatalyst(item events.NewsItem) {
	p.mu.Lock()
	p.catalysts[item.MarketID] = catalyst{headline: item.Headline, at: p.now()}
	p.mu.Unlock()
}

// emit enriches and publishes one anomaly. Nil anomalies are the common
// no-detection case.
func (p *Pipeline) emit(ctx context.Context, a *events.AnomalyDetected) {
	if a == nil {
		return
	}

	signalCount := p.countSignal(a.MarketID)

	if a.Details == nil {
		a.Details = events.Details{}
	}
	if a.Details.String(events.DetailSignal) != "" {
		p.enrich(a, signalCount)
	}
	p.attachURL(a)

	if err := p.bus.Publish(ctx, events.TopicAnomaly, a); err != nil {
		log.Warn().Err(err).Str("market", a.MarketID).Msg("Failed to publish anomaly")
		return
	}
	log.Info().
		Str("type", string(a.Type)).
		Str("market", a.MarketID).
		Float64("severity", a.Severity).
		Msg("🚨 " + a.Description)
}

// countSignal records this anomaly and returns how many the market produced
// in the last hour, capped at 5.
func (p *Pipeline) countSignal(marketID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	recent := p.signals[marketID][:0]
	for _, at := range p.signals[marketID] {
		if now.Sub(at) < signalWindow {
			recent = append(recent, at)
		}
	}
	recent = append(recent, now)
	p.signals[marketID] = recent

	if len(recent) > signalCap {
		return signalCap
	}
	return len(recent)
}

// enrich attaches the quality score and its inputs to a signal-bearing
// anomaly.
func (p *Pipeline) enrich(a *events.AnomalyDetected, signalCount int) {
	snap, ok := p.snapshots.Get(a.MarketID)
	if !ok {
		return
	}

	p.mu.Lock()
	cat, hasCat := p.catalysts[a.MarketID]
	if hasCat && p.now().Sub(cat.at) >= catalystTTL {
		hasCat = false
	}
	p.mu.Unlock()

	res := quality.Score(quality.Input{
		Question:        snap.Question,
		Category:        snap.Category,
		EndDate:         snap.EndDate,
		Volume:          snap.Volume24h,
		AnomalySignals:  signalCount,
		HasNewsCatalyst: hasCat,
	}, p.now())

	a.Details[events.DetailQualityScore] = float64(res.Score)
	a.Details[events.DetailMarketType] = string(res.Type)
	if res.Breakdown() != "" {
		a.Details[events.DetailBreakdown] = res.Breakdown()
	}
	if res.HoursToResolution != nil {
		a.Details[events.DetailHoursToRes] = *res.HoursToResolution
	}
	if hasCat {
		a.Details[events.DetailCatalyst] = cat.headline
	}
	if !res.IsActionable() {
		// Blocked signals keep their score but lose the signal detail so
		// downstream consumers treat them as informational.
		delete(a.Details, events.DetailSignal)
		if len(res.Blocks) > 0 {
			a.Details["qualityBlocks"] = res.Blocks
		}
	}
	if a.Details.String(events.DetailQuestion) == "" {
		a.Details[events.DetailQuestion] = snap.Question
	}
}

func (p *Pipeline) attachURL(a *events.AnomalyDetected) {
	if a.Details.String(events.DetailURL) != "" {
		return
	}
	if snap, ok := p.snapshots.Get(a.MarketID); ok && snap.EventSlug != "" {
		a.Details[events.DetailURL] = marketBaseURL + snap.EventSlug
	}
}

// TrackedBooks exposes the snapshot cache to the order-book scanner.
func (p *Pipeline) TrackedBooks() []feed.TrackedBook {
	snaps := p.snapshots.All()
	out := make([]feed.TrackedBook, 0, len(snaps))
	for _, s := range snaps {
		if s.YesTokenID == "" {
			continue
		}
		out = append(out, feed.TrackedBook{MarketID: s.MarketID, YesTokenID: s.YesTokenID})
	}
	return out
}
