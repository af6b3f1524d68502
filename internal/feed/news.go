package feed

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/polysentry/polysentry/internal/bus"
	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/marketcache"
)

const seenNewsLimit = 5000

// Words too generic to identify a market.
var newsStopwords = map[string]struct{}{
	"will": {}, "would": {}, "the": {}, "and": {}, "for": {}, "with": {},
	"this": {}, "that": {}, "from": {}, "have": {}, "been": {}, "before": {},
	"after": {}, "than": {}, "there": {}, "their": {}, "about": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "2025": {}, "2026": {},
}

var newsWordRe = regexp.MustCompile(`[A-Za-z0-9]+`)

// NewsFetcher polls RSS feeds and matches each headline against the keyword
// set of every tracked market. Relevance is the fraction of a market's
// keywords the headline hits.
type NewsFetcher struct {
	parser    *gofeed.Parser
	feedURLs  []string
	snapshots *marketcache.SnapshotCache
	bus       bus.Bus
	interval  time.Duration
	seen      *marketcache.SeenSet
	stopCh    chan struct{}
}

func NewNewsFetcher(feedURLs []string, snapshots *marketcache.SnapshotCache, b bus.Bus, interval time.Duration) *NewsFetcher {
	return &NewsFetcher{
		parser:    gofeed.NewParser(),
		feedURLs:  feedURLs,
		snapshots: snapshots,
		bus:       b,
		interval:  interval,
		seen:      marketcache.NewSeenSet(seenNewsLimit),
		stopCh:    make(chan struct{}),
	}
}

func (f *NewsFetcher) Start(ctx context.Context) {
	go f.loop(ctx)
	log.Info().Int("feeds", len(f.feedURLs)).Dur("interval", f.interval).Msg("📰 News fetcher started")
}

func (f *NewsFetcher) Stop() {
	close(f.stopCh)
}

func (f *NewsFetcher) loop(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.pollOnce(ctx)
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (f *NewsFetcher) pollOnce(ctx context.Context) {
	markets := f.snapshots.All()
	if len(markets) == 0 {
		return
	}

	for _, url := range f.feedURLs {
		feed, err := f.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			log.Warn().Err(err).Str("feed", url).Msg("News feed fetch failed")
			continue
		}
		source := feed.Title
		for _, item := range feed.Items {
			if item.Link == "" || f.seen.Add(item.Link) {
				continue
			}
			f.matchItem(ctx, item, source, markets)
		}
	}
}

func (f *NewsFetcher) matchItem(ctx context.Context, item *gofeed.Item, source string, markets []events.MarketSnapshot) {
	headlineWords := wordSet(item.Title + " " + item.Description)
	if len(headlineWords) == 0 {
		return
	}

	for _, snap := range markets {
		keywords := questionKeywords(snap.Question)
		if len(keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range keywords {
			if _, ok := headlineWords[kw]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		relevance := float64(hits) / float64(len(keywords))

		ev := events.NewsItem{
			MarketID:  snap.MarketID,
			Headline:  item.Title,
			Source:    source,
			URL:       item.Link,
			Relevance: relevance,
			Timestamp: time.Now(),
		}
		if err := f.bus.Publish(ctx, events.TopicNews, ev); err != nil {
			log.Warn().Err(err).Str("market", snap.MarketID).Msg("Failed to publish news item")
		}
	}
}

// questionKeywords extracts the identifying words of a market question.
func questionKeywords(question string) []string {
	var out []string
	for _, w := range newsWordRe.FindAllString(question, -1) {
		w = strings.ToLower(w)
		if len(w) < 3 {
			continue
		}
		if _, stop := newsStopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range newsWordRe.FindAllString(text, -1) {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}
