package marketcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// NameResolver maps a market id to its question text. It reads the snapshot
// cache first and falls back to a Gamma API lookup, memoising misses so a
// market is fetched at most once.
type NameResolver struct {
	snapshots *SnapshotCache
	client    *resty.Client

	mu      sync.Mutex
	fetched map[string]string
}

type gammaMarket struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

func NewNameResolver(snapshots *SnapshotCache, gammaURL string) *NameResolver {
	client := resty.New().
		SetBaseURL(gammaURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &NameResolver{
		snapshots: snapshots,
		client:    client,
		fetched:   make(map[string]string),
	}
}

// Resolve returns the market's question, or the id itself when no name can
// be found. It never fails: alerts go out either way.
func (r *NameResolver) Resolve(marketID string) string {
	if snap, ok := r.snapshots.Get(marketID); ok && snap.Question != "" {
		return snap.Question
	}

	r.mu.Lock()
	if name, ok := r.fetched[marketID]; ok {
		r.mu.Unlock()
		return name
	}
	r.mu.Unlock()

	name, err := r.fetch(marketID)
	if err != nil {
		log.Debug().Err(err).Str("market", marketID).Msg("Market name lookup failed")
		return marketID
	}

	r.mu.Lock()
	r.fetched[marketID] = name
	r.mu.Unlock()
	return name
}

func (r *NameResolver) fetch(marketID string) (string, error) {
	var market gammaMarket
	resp, err := r.client.R().
		SetResult(&market).
		Get("/markets/" + marketID)
	if err != nil {
		return "", fmt.Errorf("fetching market %s: %w", marketID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetching market %s: status %d", marketID, resp.StatusCode())
	}
	if market.Question == "" {
		return "", fmt.Errorf("market %s has no question", marketID)
	}
	return market.Question, nil
}
