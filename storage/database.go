package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Queryable mirror of the paper ledger
// ═══════════════════════════════════════════════════════════════════════════════
//
// The JSONL file is the audit trail; the database is the queryable view.
// SQLite by default, PostgreSQL when the path is a postgres:// URL.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// PaperTrade is one simulated position, updated in place at settlement
type PaperTrade struct {
	ID          string `gorm:"primaryKey"`
	RoundID     int64  `gorm:"index"`
	Action      string
	Strategy    string
	MarketSlug  string
	EntryPrice  decimal.Decimal `gorm:"type:decimal(10,6)"`
	ExitPrice   decimal.Decimal `gorm:"type:decimal(10,6)"`
	NotionalUSD decimal.Decimal `gorm:"type:decimal(20,6)"`
	Confidence  decimal.Decimal `gorm:"type:decimal(10,6)"`
	Score       decimal.Decimal `gorm:"type:decimal(10,6)"`
	Status      string          `gorm:"index"` // "open", "closed"
	Outcome     string          // "win", "loss", "flat", "invalid"
	ReturnPct   decimal.Decimal `gorm:"type:decimal(12,6)"`
	GrossPnlUSD decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnlUSD      decimal.Decimal `gorm:"type:decimal(20,6)"`
	EnteredAt   time.Time
	SettledAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DailySummary aggregates settled trades per UTC day
type DailySummary struct {
	DayUTC         string `gorm:"primaryKey"` // "2006-01-02"
	ClosedTrades   int
	Wins           int
	Losses         int
	Invalid        int
	RealizedPnlUSD decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New opens the trade database and migrates its models
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&PaperTrade{}, &DailySummary{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// SaveOpenTrade persists a newly opened paper position
func (d *Database) SaveOpenTrade(trade *PaperTrade) error {
	trade.Status = "open"
	return d.db.Create(trade).Error
}

// SettleTrade marks a position closed with its settlement result
func (d *Database) SettleTrade(id string, exitPrice, returnPct, grossPnlUSD, pnlUSD decimal.Decimal, outcome string, settledAt time.Time) error {
	return d.db.Model(&PaperTrade{}).Where("id = ?", id).Updates(map[string]any{
		"status":        "closed",
		"exit_price":    exitPrice,
		"return_pct":    returnPct,
		"gross_pnl_usd": grossPnlUSD,
		"pnl_usd":       pnlUSD,
		"outcome":       outcome,
		"settled_at":    settledAt,
	}).Error
}

// UpsertDailySummary rewrites the aggregate row for one UTC day
func (d *Database) UpsertDailySummary(summary *DailySummary) error {
	return d.db.Save(summary).Error
}

// RecentTrades returns the latest positions, newest first
func (d *Database) RecentTrades(limit int) ([]PaperTrade, error) {
	var trades []PaperTrade
	err := d.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// OpenTrades returns all unsettled positions
func (d *Database) OpenTrades() ([]PaperTrade, error) {
	var trades []PaperTrade
	err := d.db.Where("status = ?", "open").Find(&trades).Error
	return trades, err
}
