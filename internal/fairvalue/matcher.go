package fairvalue

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Match is the structured reading of a crypto price question, e.g.
// "Will Bitcoin be above $110,000 on March 31, 2026?".
type Match struct {
	Symbol      string
	TargetPrice decimal.Decimal
	IsAbove     bool
	ExpiryDate  *time.Time
}

// symbolAliases maps question words to ticker symbols. Matched whole-word,
// case-insensitive, first occurrence wins.
var symbolAliases = map[string]string{
	"bitcoin":  "BTC",
	"btc":      "BTC",
	"ethereum": "ETH",
	"eth":      "ETH",
	"ether":    "ETH",
	"solana":   "SOL",
	"sol":      "SOL",
	"dogecoin": "DOGE",
	"doge":     "DOGE",
	"xrp":      "XRP",
	"ripple":   "XRP",
	"polygon":  "MATIC",
	"matic":    "MATIC",
	"sui":      "SUI",
}

var belowKeywords = []string{
	"below", "under", "less than", "lower than", "drop to", "fall to",
	"dip to", "beneath", "crash to",
}

var (
	wordRe   = regexp.MustCompile(`[A-Za-z]+`)
	priceRe  = regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmM])?`)
	phraseRe = regexp.MustCompile(`(?i)\b(?:on|by|before)\s+([A-Za-z]{3,9}\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)`)
	mdYearRe = regexp.MustCompile(`(?i)\b([A-Za-z]{3,9}\s+\d{1,2}(?:st|nd|rd|th)?,\s*\d{4})`)
	ordRe    = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)\b`)
)

var dateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"January 2",
	"Jan 2",
}

// ParseQuestion extracts a crypto price match from free-text. Returns nil
// when the question does not reference a known asset or carries no target.
func ParseQuestion(question string, now time.Time) *Match {
	symbol := parseSymbol(question)
	if symbol == "" {
		return nil
	}

	target, ok := parseTarget(question)
	if !ok {
		return nil
	}

	return &Match{
		Symbol:      symbol,
		TargetPrice: target,
		IsAbove:     parseDirection(question),
		ExpiryDate:  parseExpiry(question, now),
	}
}

func parseSymbol(question string) string {
	for _, word := range wordRe.FindAllString(question, -1) {
		if sym, ok := symbolAliases[strings.ToLower(word)]; ok {
			return sym
		}
	}
	return ""
}

func parseTarget(question string) (decimal.Decimal, bool) {
	m := priceRe.FindStringSubmatch(question)
	if m == nil {
		return decimal.Zero, false
	}
	num := strings.ReplaceAll(m[1], ",", "")
	target, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		target = target.Mul(decimal.NewFromInt(1000))
	case "m":
		target = target.Mul(decimal.NewFromInt(1000000))
	}
	if !target.IsPositive() {
		return decimal.Zero, false
	}
	return target, true
}

// parseDirection defaults to "above"; a below keyword wins over any above
// keyword appearing in the same question.
func parseDirection(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range belowKeywords {
		if strings.Contains(q, kw) {
			return false
		}
	}
	return true
}

func parseExpiry(question string, now time.Time) *time.Time {
	var datePart string
	if m := phraseRe.FindStringSubmatch(question); m != nil {
		datePart = m[1]
	} else if m := mdYearRe.FindStringSubmatch(question); m != nil {
		datePart = m[1]
	} else {
		return nil
	}
	datePart = strings.TrimSpace(ordRe.ReplaceAllString(datePart, "$1"))

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, datePart)
		if err != nil {
			continue
		}
		if !strings.Contains(layout, "2006") {
			t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		// A yearless or already-past date means the next occurrence.
		if t.Before(now) {
			t = t.AddDate(1, 0, 0)
		}
		return &t
	}
	return nil
}

// Canonical renders the match back into question form. ParseQuestion on the
// canonical form reproduces the same match.
func (m *Match) Canonical() string {
	dir := "above"
	if !m.IsAbove {
		dir = "below"
	}
	s := fmt.Sprintf("Will %s be %s $%s", m.Symbol, dir, m.TargetPrice.String())
	if m.ExpiryDate != nil {
		s += " on " + m.ExpiryDate.Format("January 2, 2006")
	}
	return s + "?"
}
