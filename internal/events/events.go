// Package events defines the message schemas shared by every producer and
// consumer in the pipeline. One topic per event type; payloads are JSON.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics. Consumers subscribe by type.
const (
	TopicMarketSnapshot = "polysentry.market.snapshot"
	TopicPriceChange    = "polysentry.market.price"
	TopicLargeTrade     = "polysentry.trade.large"
	TopicOrderBook      = "polysentry.orderbook.updated"
	TopicNews           = "polysentry.news.detected"
	TopicCryptoPrice    = "polysentry.crypto.price"
	TopicAnomaly        = "polysentry.anomaly.detected"
	TopicBetPlaced      = "polysentry.bet.placed"
)

// AnomalyType identifies what a detector saw.
type AnomalyType string

const (
	AnomalyPriceSpike           AnomalyType = "PriceSpike"
	AnomalyVolumeSpike          AnomalyType = "VolumeSpike"
	AnomalyWhaleTrade           AnomalyType = "WhaleTrade"
	AnomalyMarketDivergence     AnomalyType = "MarketDivergence"
	AnomalyNearResolution       AnomalyType = "NearResolution"
	AnomalyOrderBookImbalance   AnomalyType = "OrderBookImbalance"
	AnomalySpread               AnomalyType = "SpreadAnomaly"
	AnomalyNewsImpact           AnomalyType = "NewsImpact"
	AnomalyCryptoDivergence     AnomalyType = "CryptoDivergence"
	AnomalyArbitrageOpportunity AnomalyType = "ArbitrageOpportunity"
)

// Trade sides and signals.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	SignalBuyYes = "BUY YES"
	SignalBuyNo  = "BUY NO"
)

// MarketSnapshot is the periodic full view of one binary market.
// YesPrice + NoPrice ≈ 1.0 by invariant of the venue.
type MarketSnapshot struct {
	MarketID   string          `json:"marketId"`
	Question   string          `json:"question"`
	YesPrice   decimal.Decimal `json:"yesPrice"`
	NoPrice    decimal.Decimal `json:"noPrice"`
	Volume24h  decimal.Decimal `json:"volume24h"`
	Liquidity  decimal.Decimal `json:"liquidity"`
	EndDate    *time.Time      `json:"endDate,omitempty"`
	Category   string          `json:"category,omitempty"`
	EventSlug  string          `json:"eventSlug,omitempty"`
	YesTokenID string          `json:"yesTokenId,omitempty"`
	NoTokenID  string          `json:"noTokenId,omitempty"`
	Timestamp  time.Time       `json:"ts"`
}

// PriceChange is emitted when the market sync observes the YES price move.
type PriceChange struct {
	MarketID      string          `json:"marketId"`
	Question      string          `json:"question"`
	OldPrice      decimal.Decimal `json:"oldPrice"`
	NewPrice      decimal.Decimal `json:"newPrice"`
	ChangePercent float64         `json:"changePercent"`
	Timestamp     time.Time       `json:"ts"`
}

// Trade is a single fill reported by the whale tracker.
type Trade struct {
	MarketID      string          `json:"marketId"`
	TraderAddress string          `json:"traderAddress"`
	Side          string          `json:"side"` // BUY or SELL
	Size          decimal.Decimal `json:"size"`
	Price         decimal.Decimal `json:"price"`
	Timestamp     time.Time       `json:"ts"`
}

// Value is the notional of the trade in dollars.
func (t Trade) Value() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

// OrderBook is one sampled book state for the YES token.
type OrderBook struct {
	MarketID       string          `json:"marketId"`
	BestBid        decimal.Decimal `json:"bestBid"`
	BestAsk        decimal.Decimal `json:"bestAsk"`
	Spread         decimal.Decimal `json:"spread"`
	BidDepth       decimal.Decimal `json:"bidDepth"`
	AskDepth       decimal.Decimal `json:"askDepth"`
	ImbalanceRatio float64         `json:"imbalanceRatio"` // (bid-ask)/(bid+ask)
	Timestamp      time.Time       `json:"ts"`
}

// NewsItem is a feed headline matched against one market's keywords.
// Relevance is the fraction of the market's keywords the headline hit.
type NewsItem struct {
	MarketID  string    `json:"marketId"`
	Headline  string    `json:"headline"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Relevance float64   `json:"relevance"`
	Timestamp time.Time `json:"ts"`
}

// CryptoPrice is one spot update from the crypto ticker stream.
type CryptoPrice struct {
	Symbol           string          `json:"symbol"`
	CurrentPrice     decimal.Decimal `json:"currentPrice"`
	Price24hAgo      decimal.Decimal `json:"price24hAgo"`
	AnnualVolatility float64         `json:"annualVolatility"`
	Timestamp        time.Time       `json:"ts"`
}

// AnomalyDetected fans out to the alerter, the auto-bet strategist and the
// raw persister. Severity is normalised to [0,1].
type AnomalyDetected struct {
	Type        AnomalyType `json:"type"`
	MarketID    string      `json:"marketId"`
	Description string      `json:"description"`
	Severity    float64     `json:"severity"`
	Details     Details     `json:"details,omitempty"`
	Timestamp   time.Time   `json:"ts"`
}

// BetPlaced summarises one auto-bet order attempt.
type BetPlaced struct {
	MarketID  string          `json:"marketId"`
	Question  string          `json:"question,omitempty"`
	Signal    string          `json:"signal"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	OrderID   string          `json:"orderId,omitempty"`
	Status    string          `json:"status"` // placed / failed
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"ts"`
}
