// Package storage is the raw persister: every anomaly and every auto-bet
// result lands in the database regardless of whether an alert went out.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/polysentry/polysentry/internal/events"
)

type Database struct {
	db *gorm.DB
}

// Models

type AnomalyRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Type        string `gorm:"index"`
	MarketID    string `gorm:"index"`
	Description string
	Severity    float64
	Signal      string
	Details     string // JSON blob of the full details map
	DetectedAt  time.Time
	CreatedAt   time.Time
}

type BetRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	MarketID  string `gorm:"index"`
	Question  string
	Signal    string
	Price     string
	Size      string
	OrderID   string
	Status    string `gorm:"index"`
	Error     string
	PlacedAt  time.Time
	CreatedAt time.Time
}

func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&AnomalyRecord{}, &BetRecord{}); err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// SaveAnomaly stores one detected anomaly.
func (d *Database) SaveAnomaly(a events.AnomalyDetected) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		details = []byte("{}")
	}
	rec := AnomalyRecord{
		Type:        string(a.Type),
		MarketID:    a.MarketID,
		Description: a.Description,
		Severity:    a.Severity,
		Signal:      a.Details.String(events.DetailSignal),
		Details:     string(details),
		DetectedAt:  a.Timestamp,
	}
	return d.db.Create(&rec).Error
}

// SaveBet stores one auto-bet attempt.
func (d *Database) SaveBet(b events.BetPlaced) error {
	rec := BetRecord{
		MarketID: b.MarketID,
		Question: b.Question,
		Signal:   b.Signal,
		Price:    b.Price.String(),
		Size:     b.Size.String(),
		OrderID:  b.OrderID,
		Status:   b.Status,
		Error:    b.Error,
		PlacedAt: b.Timestamp,
	}
	return d.db.Create(&rec).Error
}

// RecentAnomalies returns the latest stored anomalies.
func (d *Database) RecentAnomalies(limit int) ([]AnomalyRecord, error) {
	var recs []AnomalyRecord
	err := d.db.Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// AnomalyCountSince counts anomalies for a market in the lookback window.
func (d *Database) AnomalyCountSince(marketID string, since time.Time) (int64, error) {
	var n int64
	err := d.db.Model(&AnomalyRecord{}).
		Where("market_id = ? AND detected_at >= ?", marketID, since).
		Count(&n).Error
	return n, err
}
