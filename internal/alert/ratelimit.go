package alert

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxSignalsPerDay = 5
	minSignalGap     = 30 * time.Minute
)

// rateLimitState is the durable part of the signal rate limit. It survives
// restarts so the daily budget cannot be reset by bouncing the process.
type rateLimitState struct {
	Date           string     `json:"date"`
	TodayCount     int        `json:"todayCount"`
	LastSignalTime *time.Time `json:"lastSignalTime,omitempty"`
}

// RateLimiter enforces the per-day signal budget and the minimum gap between
// signals, backed by a JSON file.
type RateLimiter struct {
	mu       sync.Mutex
	filePath string
	state    rateLimitState
	now      func() time.Time
}

func NewRateLimiter(filePath string) *RateLimiter {
	r := &RateLimiter{filePath: filePath, now: time.Now}
	r.load()
	return r
}

// Allow reports whether a signal may be sent now. It does not consume the
// budget; call Commit after the message actually went out.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.rolloverLocked(now)

	if r.state.TodayCount >= maxSignalsPerDay {
		log.Debug().Int("today", r.state.TodayCount).Msg("Signal dropped: daily budget spent")
		return false
	}
	if r.state.LastSignalTime != nil && now.Sub(*r.state.LastSignalTime) < minSignalGap {
		log.Debug().Time("last", *r.state.LastSignalTime).Msg("Signal dropped: too soon after previous")
		return false
	}
	return true
}

// Commit records one sent signal and persists.
func (r *RateLimiter) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.rolloverLocked(now)
	r.state.TodayCount++
	r.state.LastSignalTime = &now
	r.persistLocked()
}

func (r *RateLimiter) rolloverLocked(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if r.state.Date != today {
		r.state = rateLimitState{Date: today}
		r.persistLocked()
	}
}

func (r *RateLimiter) persistLocked() {
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode rate limit state")
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.filePath), 0o755); err != nil {
		log.Warn().Err(err).Msg("Failed to create rate limit dir")
		return
	}
	tmp := r.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn().Err(err).Msg("Failed to write rate limit state")
		return
	}
	if err := os.Rename(tmp, r.filePath); err != nil {
		log.Warn().Err(err).Msg("Failed to replace rate limit file")
	}
}

func (r *RateLimiter) load() {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Failed to read rate limit state")
		}
		return
	}
	if err := json.Unmarshal(data, &r.state); err != nil {
		log.Warn().Err(err).Msg("Failed to decode rate limit state, starting fresh")
	}
}
