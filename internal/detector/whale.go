package detector

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polysentry/polysentry/internal/events"
)

// WhaleDetector flags single trades with large notional value, but only when
// following the whale still leaves enough room to resolution.
type WhaleDetector struct {
	now func() time.Time
}

var (
	whaleMinValue    = decimal.NewFromInt(10000)
	bigWhaleMinValue = decimal.NewFromInt(50000)
)

const (
	whaleMinROI         = 0.50
	bigWhaleMinROI      = 0.30
	whaleSeverityScale  = 100000.0
)

func NewWhale() *WhaleDetector {
	return &WhaleDetector{now: time.Now}
}

func (d *WhaleDetector) Process(tr events.Trade) *events.AnomalyDetected {
	value := tr.Value()
	if value.LessThan(whaleMinValue) {
		return nil
	}
	isBig := value.GreaterThanOrEqual(bigWhaleMinValue)

	minROI := whaleMinROI
	if isBig {
		minROI = bigWhaleMinROI
	}

	// A BUY whale backs YES at the trade price; a SELL whale implies NO at
	// the complement.
	price := tr.Price.InexactFloat64()
	signal := events.SignalBuyYes
	buyPrice := price
	if tr.Side == events.SideSell {
		signal = events.SignalBuyNo
		buyPrice = 1 - price
	}

	if !inZone(buyPrice) {
		return nil
	}
	roi := maxROI(buyPrice)
	if roi < minROI {
		return nil
	}

	label := "Whale"
	if isBig {
		label = "Big whale"
	}
	return &events.AnomalyDetected{
		Type:     events.AnomalyWhaleTrade,
		MarketID: tr.MarketID,
		Description: fmt.Sprintf("%s %s $%s at %.2f by %s", label, tr.Side,
			value.StringFixed(0), price, shortAddr(tr.TraderAddress)),
		Severity: clampSeverity(value.InexactFloat64() / whaleSeverityScale),
		Details: events.Details{
			events.DetailSignal:      signal,
			events.DetailBuyPrice:    buyPrice,
			events.DetailExpectedROI: roi,
			"tradeValue":             value.InexactFloat64(),
			"side":                   tr.Side,
			"trader":                 tr.TraderAddress,
			"isBigWhale":             isBig,
		},
		Timestamp: d.now(),
	}
}

func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
