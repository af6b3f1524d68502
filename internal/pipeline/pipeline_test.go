package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysentry/polysentry/internal/bus"
	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/marketcache"
)

func newTestPipeline(t *testing.T) (*Pipeline, *bus.MemoryBus, *[]events.AnomalyDetected) {
	t.Helper()
	b := bus.NewMemory()
	p := New(b, marketcache.NewSnapshotCache(), marketcache.NewCryptoMarketCache())
	require.NoError(t, p.Start(context.Background()))

	var anomalies []events.AnomalyDetected
	err := b.Subscribe(context.Background(), events.TopicAnomaly, func(_ context.Context, payload []byte) {
		var a events.AnomalyDetected
		require.NoError(t, json.Unmarshal(payload, &a))
		anomalies = append(anomalies, a)
	})
	require.NoError(t, err)
	return p, b, &anomalies
}

func publish(t *testing.T, b *bus.MemoryBus, topic string, v any) {
	t.Helper()
	require.NoError(t, b.Publish(context.Background(), topic, v))
}

func TestPipelineCryptoDivergenceFlow(t *testing.T) {
	_, b, anomalies := newTestPipeline(t)

	endDate := time.Now().Add(70 * time.Hour)
	snap := events.MarketSnapshot{
		MarketID:  "mkt-btc",
		Question:  "Will Bitcoin be above $110,000?",
		YesPrice:  decimal.NewFromFloat(0.25),
		NoPrice:   decimal.NewFromFloat(0.75),
		Volume24h: decimal.NewFromInt(1200000),
		EndDate:   &endDate,
		EventSlug: "btc-110k",
		Timestamp: time.Now(),
	}
	publish(t, b, events.TopicMarketSnapshot, snap)
	require.Empty(t, *anomalies, "a calm snapshot produces nothing")

	spot := events.CryptoPrice{
		Symbol:           "BTC",
		CurrentPrice:     decimal.NewFromInt(108000),
		AnnualVolatility: 0.65,
		Timestamp:        time.Now(),
	}

	// First divergence: only one recent signal for the market, so the
	// quality gate strips the signal but the anomaly still fans out.
	publish(t, b, events.TopicCryptoPrice, spot)
	require.Len(t, *anomalies, 1)
	first := (*anomalies)[0]
	assert.Equal(t, events.AnomalyArbitrageOpportunity, first.Type)
	assert.Empty(t, first.Details.String(events.DetailSignal))
	assert.NotEmpty(t, first.Details["qualityBlocks"])

	// Second divergence: two signals within the hour clears the gate.
	publish(t, b, events.TopicCryptoPrice, spot)
	require.Len(t, *anomalies, 2)
	second := (*anomalies)[1]
	assert.Equal(t, events.SignalBuyYes, second.Details.String(events.DetailSignal))
	assert.InDelta(t, 70, second.Details.Float(events.DetailQualityScore), 1e-9)
	assert.Equal(t, "PriceBinary", second.Details.String(events.DetailMarketType))
	assert.Equal(t, "https://polymarket.com/event/btc-110k", second.Details.String(events.DetailURL))
	assert.Greater(t, second.Details.Float(events.DetailExpectedROI), 0.15)
}

func TestPipelineWhaleFlow(t *testing.T) {
	_, b, anomalies := newTestPipeline(t)

	endDate := time.Now().Add(20 * time.Hour)
	publish(t, b, events.TopicMarketSnapshot, events.MarketSnapshot{
		MarketID:  "mkt-nba",
		Question:  "Will the Lakers beat the Celtics?",
		YesPrice:  decimal.NewFromFloat(0.50),
		NoPrice:   decimal.NewFromFloat(0.50),
		Volume24h: decimal.NewFromInt(1500000),
		EndDate:   &endDate,
		Category:  "Sports",
	})

	whale := events.Trade{
		MarketID:      "mkt-nba",
		TraderAddress: "0xAbCdEf0123456789aBcDeF0123456789abcdef01",
		Side:          events.SideBuy,
		Size:          decimal.NewFromInt(30000),
		Price:         decimal.NewFromFloat(0.50),
		Timestamp:     time.Now(),
	}
	publish(t, b, events.TopicLargeTrade, whale)
	publish(t, b, events.TopicLargeTrade, whale)

	require.Len(t, *anomalies, 2)
	second := (*anomalies)[1]
	assert.Equal(t, events.AnomalyWhaleTrade, second.Type)
	// 24h window +30, live sports +25, volume ≥$1M +15, 2 signals +15.
	assert.InDelta(t, 85, second.Details.Float(events.DetailQualityScore), 1e-9)
	assert.Equal(t, "LiveSports", second.Details.String(events.DetailMarketType))
	assert.Contains(t, second.Details.String(events.DetailBreakdown), " | ")
	assert.Equal(t, "Will the Lakers beat the Celtics?", second.Details.String(events.DetailQuestion))
}

func TestPipelineNewsCatalystEnrichment(t *testing.T) {
	_, b, anomalies := newTestPipeline(t)

	// Market resolving in 20 days: actionable only with a news catalyst.
	endDate := time.Now().Add(20 * 24 * time.Hour)
	publish(t, b, events.TopicMarketSnapshot, events.MarketSnapshot{
		MarketID:  "mkt-fed",
		Question:  "Will the Fed cut the rate in March?",
		YesPrice:  decimal.NewFromFloat(0.50),
		NoPrice:   decimal.NewFromFloat(0.50),
		Volume24h: decimal.NewFromInt(1200000),
		EndDate:   &endDate,
	})

	publish(t, b, events.TopicNews, events.NewsItem{
		MarketID:  "mkt-fed",
		Headline:  "Fed signals emergency rate cut",
		Source:    "reuters",
		Relevance: 0.8,
	})
	require.Len(t, *anomalies, 1, "news impact anomaly emitted")

	whale := events.Trade{
		MarketID: "mkt-fed",
		Side:     events.SideBuy,
		Size:     decimal.NewFromInt(30000),
		Price:    decimal.NewFromFloat(0.50),
	}
	publish(t, b, events.TopicLargeTrade, whale)
	publish(t, b, events.TopicLargeTrade, whale)

	require.Len(t, *anomalies, 3)
	third := (*anomalies)[2]
	assert.Equal(t, "Fed signals emergency rate cut", third.Details.String(events.DetailCatalyst))
	// Without the catalyst the >7d resolution would hard-block the signal.
	assert.NotEmpty(t, third.Details.String(events.DetailSignal))
	// No time points that far out: type +20, volume +15, 3 signals +30.
	assert.InDelta(t, 65, third.Details.Float(events.DetailQualityScore), 1e-9)
}

func TestDecodeSkipsMalformedPayload(t *testing.T) {
	called := false
	h := decode(func(_ context.Context, _ events.Trade) { called = true })
	h(context.Background(), []byte("{not json"))
	assert.False(t, called)
}
