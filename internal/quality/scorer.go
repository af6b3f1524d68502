// Package quality gates which anomalies may become actionable signals with a
// rule-based 0-100 score and a set of hard blocks.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketType classifies how objectively a market resolves.
type MarketType string

const (
	TypeLiveSports  MarketType = "LiveSports"
	TypePriceBinary MarketType = "PriceBinary"
	TypeObjective   MarketType = "ObjectiveMeasurable"
	TypeUnknown     MarketType = "Unknown"
)

// Actionability threshold.
const MinActionableScore = 60

// Input is everything the scorer looks at for one market.
type Input struct {
	Question        string
	Category        string
	EndDate         *time.Time
	Volume          decimal.Decimal
	AnomalySignals  int // recent anomaly count for the market, 0..5
	HasNewsCatalyst bool
}

// Result carries the score, the classification and the reasons either way.
type Result struct {
	Score             int
	Type              MarketType
	HoursToResolution *float64
	Reasons           []string
	Blocks            []string
}

// IsActionable reports whether the signal clears the quality gate.
func (r Result) IsActionable() bool {
	return r.Score >= MinActionableScore && len(r.Blocks) == 0
}

// Breakdown renders the score reasons as a single pipe-separated line.
func (r Result) Breakdown() string {
	return strings.Join(r.Reasons, " | ")
}

var subjectiveCategories = []string{"awards", "rankings", "ai", "politics"}

// Keyword lists are matched whole-word and case-insensitive; short tickers
// like "eth" would otherwise light up inside ordinary words.
var subjectiveKeywords = keywordSet(
	"mvp", "dpoy", "best", "oscar", "grammy", "emmy", "approval rating",
	"ranking", "roty", "roy", "all-star", "pro bowl", "hall of fame",
	"model arena",
)

var sportsKeywords = keywordSet(
	"win", "beat", "score", "spread", "vs", "match", "game", "fight",
	"serie a", "premier league", "nba", "nfl", "mlb", "nhl", "ufc",
	"champions league", "la liga", "bundesliga",
)

var priceKeywords = keywordSet(
	"above", "below", "reach", "dip", "price", "bitcoin", "btc", "eth",
	"ethereum", "sol", "s&p", "nasdaq", "dow", "gold", "oil", "cpi",
	"jobs report", "unemployment", "fed", "rate",
)

func keywordSet(words ...string) []*regexp.Regexp {
	set := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		set[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return set
}

func containsAny(q string, set []*regexp.Regexp) bool {
	for _, re := range set {
		if re.MatchString(q) {
			return true
		}
	}
	return false
}

// Volume gates in dollars.
var (
	minVolumeHard = decimal.NewFromInt(50000)
	minVolumeSoft = decimal.NewFromInt(100000)
	volumeTier500 = decimal.NewFromInt(500000)
	volumeTier1M  = decimal.NewFromInt(1000000)
)

// Score evaluates a market. Hard blocks short-circuit with the score
// accumulated so far; the caller must still check IsActionable.
func Score(in Input, now time.Time) Result {
	r := Result{Type: classify(in)}
	q := strings.ToLower(in.Question)

	if subjective(q, in.Category) {
		r.Blocks = append(r.Blocks, "subjective market")
		return r
	}
	if in.Volume.LessThan(minVolumeHard) {
		r.Blocks = append(r.Blocks, fmt.Sprintf("volume $%s below $50k floor", in.Volume.StringFixed(0)))
		return r
	}

	if in.EndDate != nil {
		if in.EndDate.Before(now) {
			r.Blocks = append(r.Blocks, "market already past end date")
			return r
		}
		hours := in.EndDate.Sub(now).Hours()
		r.HoursToResolution = &hours
		switch {
		case hours <= 24:
			r.add(30, "resolves within 24h +30")
		case hours <= 72:
			r.add(20, "resolves within 72h +20")
		case hours <= 168:
			r.add(10, "resolves within 7d +10")
		}
		if hours > 168 && !in.HasNewsCatalyst {
			r.Blocks = append(r.Blocks, "resolution beyond 7d with no catalyst")
			return r
		}
	} else {
		r.add(5, "no end date +5")
	}

	switch r.Type {
	case TypeLiveSports:
		r.add(25, "live sports market +25")
	case TypePriceBinary:
		r.add(20, "price binary market +20")
	case TypeObjective:
		r.add(15, "objective market +15")
	default:
		r.Blocks = append(r.Blocks, "unclassifiable market")
		return r
	}

	switch {
	case in.Volume.GreaterThanOrEqual(volumeTier1M):
		r.add(15, "volume ≥ $1M +15")
	case in.Volume.GreaterThanOrEqual(volumeTier500):
		r.add(10, "volume ≥ $500k +10")
	case in.Volume.GreaterThanOrEqual(minVolumeSoft):
		r.add(5, "volume ≥ $100k +5")
	default:
		r.Blocks = append(r.Blocks, "volume below $100k")
		return r
	}

	switch {
	case in.AnomalySignals >= 3:
		r.add(30, fmt.Sprintf("%d anomaly signals +30", in.AnomalySignals))
	case in.AnomalySignals == 2:
		r.add(15, "2 anomaly signals +15")
	default:
		r.Blocks = append(r.Blocks, "fewer than 2 anomaly signals")
		return r
	}

	return r
}

func (r *Result) add(points int, reason string) {
	r.Score += points
	r.Reasons = append(r.Reasons, reason)
}

func subjective(q, category string) bool {
	cat := strings.ToLower(category)
	for _, c := range subjectiveCategories {
		if cat == c {
			return true
		}
	}
	return containsAny(q, subjectiveKeywords)
}

// classify picks the first matching market type.
func classify(in Input) MarketType {
	if strings.ToLower(in.Category) == "sports" {
		return TypeLiveSports
	}
	if containsAny(in.Question, sportsKeywords) {
		return TypeLiveSports
	}
	if containsAny(in.Question, priceKeywords) {
		return TypePriceBinary
	}
	if strings.HasPrefix(in.Question, "Will ") {
		return TypeObjective
	}
	return TypeUnknown
}
