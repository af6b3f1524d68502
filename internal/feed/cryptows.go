package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polysentry/polysentry/internal/bus"
	"github.com/polysentry/polysentry/internal/events"
)

const wsReconnectDelay = 5 * time.Second

// combinedMessage is one frame of the combined ticker stream:
// {"stream":"btcusdt@miniTicker","data":{...}}.
type combinedMessage struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

// miniTicker carries the 24h rolling stats alongside the last price.
type miniTicker struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
	Open   string `json:"o"`
	High   string `json:"h"`
	Low    string `json:"l"`
}

// CryptoStream maintains a WebSocket to the crypto ticker stream and
// publishes a CryptoPrice per update, with volatility estimated from the
// 24h high/low range.
type CryptoStream struct {
	wsURL   string
	apiURL  string
	assets  []string
	bus     bus.Bus
	client  *resty.Client
	stopCh  chan struct{}
}

func NewCryptoStream(wsURL, apiURL string, assets []string, b bus.Bus) *CryptoStream {
	return &CryptoStream{
		wsURL:  wsURL,
		apiURL: apiURL,
		assets: assets,
		bus:    b,
		client: resty.New().SetBaseURL(apiURL).SetTimeout(15 * time.Second),
		stopCh: make(chan struct{}),
	}
}

func (c *CryptoStream) Start(ctx context.Context) {
	go c.run(ctx)
	log.Info().Strs("assets", c.assets).Msg("🪙 Crypto stream started")
}

func (c *CryptoStream) Stop() {
	close(c.stopCh)
}

func (c *CryptoStream) run(ctx context.Context) {
	// Seed prices over REST so detectors have data before the first tick.
	c.seedFromREST(ctx)

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connectAndRead(ctx); err != nil {
			log.Warn().Err(err).Dur("retry", wsReconnectDelay).Msg("Crypto stream disconnected")
		}

		select {
		case <-time.After(wsReconnectDelay):
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *CryptoStream) streamURL() string {
	streams := make([]string, len(c.assets))
	for i, a := range c.assets {
		streams[i] = strings.ToLower(a) + "usdt@miniTicker"
	}
	return c.wsURL + "/stream?streams=" + strings.Join(streams, "/")
}

func (c *CryptoStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dialing crypto stream: %w", err)
	}
	defer conn.Close()
	log.Info().Msg("🪙 Crypto stream connected")

	// Unblock the read loop on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c.stopCh:
			conn.Close()
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading crypto stream: %w", err)
		}
		var msg combinedMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed ticker frame")
			continue
		}
		c.publish(ctx, msg.Data)
	}
}

func (c *CryptoStream) publish(ctx context.Context, t miniTicker) {
	price, err := decimal.NewFromString(t.Close)
	if err != nil || !price.IsPositive() {
		return
	}
	open, err := decimal.NewFromString(t.Open)
	if err != nil {
		return
	}

	ev := events.CryptoPrice{
		Symbol:           strings.TrimSuffix(t.Symbol, "USDT"),
		CurrentPrice:     price,
		Price24hAgo:      open,
		AnnualVolatility: annualVolatility(t.High, t.Low),
		Timestamp:        time.Now(),
	}
	if err := c.bus.Publish(ctx, events.TopicCryptoPrice, ev); err != nil {
		log.Warn().Err(err).Str("symbol", ev.Symbol).Msg("Failed to publish crypto price")
	}
}

// annualVolatility is a Parkinson estimate from the 24h high/low range,
// annualised over 365 days. Returns 0 when the range is unusable; the
// fair-value clamp supplies the floor.
func annualVolatility(high, low string) float64 {
	h, err1 := decimal.NewFromString(high)
	l, err2 := decimal.NewFromString(low)
	if err1 != nil || err2 != nil || !l.IsPositive() || h.LessThanOrEqual(l) {
		return 0
	}
	r := math.Log(h.InexactFloat64() / l.InexactFloat64())
	daily := math.Sqrt(r * r / (4 * math.Ln2))
	return daily * math.Sqrt(365)
}

// restTicker is the 24h statistics endpoint payload.
type restTicker struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	OpenPrice string `json:"openPrice"`
	HighPrice string `json:"highPrice"`
	LowPrice  string `json:"lowPrice"`
}

func (c *CryptoStream) seedFromREST(ctx context.Context) {
	for _, asset := range c.assets {
		var t restTicker
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("symbol", strings.ToUpper(asset)+"USDT").
			SetResult(&t).
			Get("/api/v3/ticker/24hr")
		if err != nil || resp.IsError() {
			log.Debug().Str("asset", asset).Msg("Ticker seed fetch failed")
			continue
		}
		c.publish(ctx, miniTicker{
			Symbol: t.Symbol,
			Close:  t.LastPrice,
			Open:   t.OpenPrice,
			High:   t.HighPrice,
			Low:    t.LowPrice,
		})
	}
}
