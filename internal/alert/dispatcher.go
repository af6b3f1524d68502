// Package alert turns qualified anomalies into chat messages, shedding load
// through a persistent daily budget, per-market dedup and a per-minute
// throttle.
package alert

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/paper"
)

// MinActionableScore mirrors the quality gate: anything under it is not
// worth a signal.
const MinActionableScore = 60

const dedupMaxEntries = 500

// Transport delivers one rendered message.
type Transport interface {
	Send(text string) error
}

// MarketResolver maps a market id to a display name.
type MarketResolver interface {
	Resolve(marketID string) string
}

// Options tune the dispatcher gates.
type Options struct {
	MinSeverity        float64
	DedupWindow        time.Duration
	MaxAlertsPerMinute int
}

// Dispatcher is the TopicAnomaly subscriber that sends alerts.
type Dispatcher struct {
	opts      Options
	limiter   *RateLimiter
	perMinute *rate.Limiter
	resolver  MarketResolver
	engine    *paper.Engine
	transport Transport

	mu     sync.Mutex
	sentAt map[dedupKey]time.Time

	now func() time.Time
}

type dedupKey struct {
	marketID string
	kind     events.AnomalyType
}

func NewDispatcher(opts Options, limiter *RateLimiter, resolver MarketResolver, engine *paper.Engine, transport Transport) *Dispatcher {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 15 * time.Minute
	}
	if opts.MaxAlertsPerMinute <= 0 {
		opts.MaxAlertsPerMinute = 10
	}
	return &Dispatcher{
		opts:      opts,
		limiter:   limiter,
		perMinute: rate.NewLimiter(rate.Limit(float64(opts.MaxAlertsPerMinute)/60), opts.MaxAlertsPerMinute),
		resolver:  resolver,
		engine:    engine,
		transport: transport,
		sentAt:    make(map[dedupKey]time.Time),
		now:       time.Now,
	}
}

// Handle runs one anomaly through the gate chain. Rejections are normal
// operation and only logged at debug.
func (d *Dispatcher) Handle(a events.AnomalyDetected) {
	if a.Severity < d.opts.MinSeverity {
		return
	}

	score := a.Details.Float(events.DetailQualityScore)
	signal := a.Details.String(events.DetailSignal)
	if score < MinActionableScore || (signal != events.SignalBuyYes && signal != events.SignalBuyNo) {
		log.Debug().Str("market", a.MarketID).Str("type", string(a.Type)).Msg("Alert dropped: not a qualified signal")
		return
	}

	if !d.limiter.Allow() {
		return
	}
	if d.recentlySent(a) {
		log.Debug().Str("market", a.MarketID).Str("type", string(a.Type)).Msg("Alert dropped: duplicate")
		return
	}
	if !d.perMinute.Allow() {
		log.Debug().Msg("Alert dropped: per-minute throttle")
		return
	}

	question := a.Details.String(events.DetailQuestion)
	if question == "" {
		question = d.resolver.Resolve(a.MarketID)
	}

	// The paper slot is consumed before transport on purpose: TryEnter has
	// its own, stricter limits and its own idempotence.
	pc := d.tryPaperEntry(a, question, signal)

	msg := formatMessage(a, question, pc)
	if err := d.transport.Send(msg); err != nil {
		log.Warn().Err(err).Str("market", a.MarketID).Msg("Alert transport failed")
		return
	}

	d.limiter.Commit()
	d.markSent(a)
	log.Info().Str("market", a.MarketID).Str("type", string(a.Type)).Float64("score", score).Msg("🔔 Alert sent")
}

func (d *Dispatcher) tryPaperEntry(a events.AnomalyDetected, question, signal string) paperContext {
	pc := paperContext{}
	if d.engine == nil {
		return pc
	}

	buyPrice, ok := a.Details.FloatOK(events.DetailBuyPrice)
	if !ok || buyPrice <= 0 {
		return pc
	}
	direction := "YES"
	if signal == events.SignalBuyNo {
		direction = "NO"
	}
	var hoursToRes *float64
	if hrs, ok := a.Details.FloatOK(events.DetailHoursToRes); ok {
		hoursToRes = &hrs
	}

	pc.position = d.engine.TryEnter(
		a.MarketID, question, direction,
		decimal.NewFromFloat(buyPrice),
		int(score(a)), a.Details.String(events.DetailCatalyst), hoursToRes,
	)
	pc.balance = d.engine.Balance()
	pc.open = len(d.engine.OpenPositions())
	return pc
}

func score(a events.AnomalyDetected) float64 {
	return a.Details.Float(events.DetailQualityScore)
}

func (d *Dispatcher) recentlySent(a events.AnomalyDetected) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.sentAt[dedupKey{a.MarketID, a.Type}]
	return ok && d.now().Sub(at) < d.opts.DedupWindow
}

func (d *Dispatcher) markSent(a events.AnomalyDetected) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.sentAt[dedupKey{a.MarketID, a.Type}] = now

	if len(d.sentAt) > dedupMaxEntries {
		for k, at := range d.sentAt {
			if now.Sub(at) >= d.opts.DedupWindow {
				delete(d.sentAt, k)
			}
		}
	}
}
