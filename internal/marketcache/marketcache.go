// Package marketcache holds the in-memory lookups shared between feed
// consumers and detectors: the latest snapshot per market, the parsed crypto
// price markets per symbol, and a bounded seen-set for dedup.
package marketcache

import (
	"sync"

	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/fairvalue"
)

// CryptoMarket is a snapshot paired with its parsed price question.
type CryptoMarket struct {
	Snapshot events.MarketSnapshot
	Match    fairvalue.Match
}

// CryptoMarketCache indexes crypto price markets by ticker symbol so a spot
// update can be joined against every market on that asset.
type CryptoMarketCache struct {
	mu       sync.RWMutex
	bySymbol map[string]map[string]CryptoMarket // symbol -> marketId -> entry
}

func NewCryptoMarketCache() *CryptoMarketCache {
	return &CryptoMarketCache{bySymbol: make(map[string]map[string]CryptoMarket)}
}

// Put stores or refreshes one parsed market.
func (c *CryptoMarketCache) Put(snap events.MarketSnapshot, match fairvalue.Match) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byID, ok := c.bySymbol[match.Symbol]
	if !ok {
		byID = make(map[string]CryptoMarket)
		c.bySymbol[match.Symbol] = byID
	}
	byID[snap.MarketID] = CryptoMarket{Snapshot: snap, Match: match}
}

// BySymbol returns all cached markets on one asset.
func (c *CryptoMarketCache) BySymbol(symbol string) []CryptoMarket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byID := c.bySymbol[symbol]
	out := make([]CryptoMarket, 0, len(byID))
	for _, entry := range byID {
		out = append(out, entry)
	}
	return out
}

// Remove drops a market, e.g. after it resolved.
func (c *CryptoMarketCache) Remove(symbol, marketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if byID, ok := c.bySymbol[symbol]; ok {
		delete(byID, marketID)
	}
}

// SnapshotCache keeps the latest snapshot per market for enrichment.
type SnapshotCache struct {
	mu     sync.RWMutex
	latest map[string]events.MarketSnapshot
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{latest: make(map[string]events.MarketSnapshot)}
}

func (c *SnapshotCache) Put(snap events.MarketSnapshot) {
	c.mu.Lock()
	c.latest[snap.MarketID] = snap
	c.mu.Unlock()
}

func (c *SnapshotCache) Get(marketID string) (events.MarketSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.latest[marketID]
	return snap, ok
}

// All returns a snapshot copy of every cached market.
func (c *SnapshotCache) All() []events.MarketSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]events.MarketSnapshot, 0, len(c.latest))
	for _, snap := range c.latest {
		out = append(out, snap)
	}
	return out
}

func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.latest)
}

// SeenSet is a bounded set of string keys. When the set outgrows its limit it
// is flushed wholesale; occasional duplicates after a flush are acceptable.
type SeenSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	limit int
}

func NewSeenSet(limit int) *SeenSet {
	return &SeenSet{seen: make(map[string]struct{}), limit: limit}
}

// Add records a key and reports whether it was already present.
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return true
	}
	if len(s.seen) >= s.limit {
		s.seen = make(map[string]struct{})
	}
	s.seen[key] = struct{}{}
	return false
}
