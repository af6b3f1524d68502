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
)

// clobBook is the order-book service response for one token.
type clobBook struct {
	Bids []clobLevel `json:"bids"`
	Asks []clobLevel `json:"asks"`
}

type clobLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookSource yields the markets whose books are worth sampling.
type BookSource interface {
	TrackedBooks() []TrackedBook
}

// TrackedBook pairs a market with its YES token.
type TrackedBook struct {
	MarketID   string
	YesTokenID string
}

// BookScanner samples the order book of each tracked market and publishes
// the derived spread and imbalance.
type BookScanner struct {
	client   *resty.Client
	source   BookSource
	bus      bus.Bus
	interval time.Duration
	stopCh   chan struct{}
}

func NewBookScanner(clobURL string, source BookSource, b bus.Bus, interval time.Duration) *BookScanner {
	client := resty.New().
		SetBaseURL(clobURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2)

	return &BookScanner{
		client:   client,
		source:   source,
		bus:      b,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (s *BookScanner) Start(ctx context.Context) {
	go s.loop(ctx)
	log.Info().Dur("interval", s.interval).Msg("📖 Order book scanner started")
}

func (s *BookScanner) Stop() {
	close(s.stopCh)
}

func (s *BookScanner) loop(ctx context.Context) {
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

func (s *BookScanner) scanOnce(ctx context.Context) {
	for _, tb := range s.source.TrackedBooks() {
		if tb.YesTokenID == "" {
			continue
		}
		book, err := s.fetchBook(ctx, tb.YesTokenID)
		if err != nil {
			log.Debug().Err(err).Str("market", tb.MarketID).Msg("Book fetch failed")
			continue
		}
		ev, ok := deriveBook(tb.MarketID, book)
		if !ok {
			continue
		}
		if err := s.bus.Publish(ctx, events.TopicOrderBook, ev); err != nil {
			log.Warn().Err(err).Str("market", tb.MarketID).Msg("Failed to publish order book")
		}
	}
}

func (s *BookScanner) fetchBook(ctx context.Context, tokenID string) (*clobBook, error) {
	var book clobBook
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&book).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("fetching book: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching book: status %d", resp.StatusCode())
	}
	return &book, nil
}

// deriveBook turns raw levels into best bid/ask, dollar depth and the
// imbalance ratio (bid−ask)/(bid+ask).
func deriveBook(marketID string, book *clobBook) (events.OrderBook, bool) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return events.OrderBook{}, false
	}

	bestBid, bidDepth, ok := bestAndDepth(book.Bids, true)
	if !ok {
		return events.OrderBook{}, false
	}
	bestAsk, askDepth, ok := bestAndDepth(book.Asks, false)
	if !ok {
		return events.OrderBook{}, false
	}

	total := bidDepth.Add(askDepth)
	imbalance := 0.0
	if total.IsPositive() {
		imbalance = bidDepth.Sub(askDepth).Div(total).InexactFloat64()
	}

	return events.OrderBook{
		MarketID:       marketID,
		BestBid:        bestBid,
		BestAsk:        bestAsk,
		Spread:         bestAsk.Sub(bestBid),
		BidDepth:       bidDepth,
		AskDepth:       askDepth,
		ImbalanceRatio: imbalance,
		Timestamp:      time.Now(),
	}, true
}

// bestAndDepth returns the best price and the total dollar depth of one
// side. Depth is Σ(price·size).
func bestAndDepth(levels []clobLevel, wantMax bool) (decimal.Decimal, decimal.Decimal, bool) {
	best := decimal.Zero
	depth := decimal.Zero
	found := false
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			continue
		}
		depth = depth.Add(price.Mul(size))
		if !found || (wantMax && price.GreaterThan(best)) || (!wantMax && price.LessThan(best)) {
			best = price
			found = true
		}
	}
	return best, depth, found
}
