package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const journalSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    worker_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    action TEXT NOT NULL,
    qty REAL NOT NULL,
    price REAL NOT NULL,
    roi REAL DEFAULT 0,
    profit REAL DEFAULT 0,
    reason TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    worker_id TEXT,
    kind TEXT NOT NULL,
    detail TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at);
`

// Trade actions recorded in the journal.
const (
	ActionOpen    = "open"
	ActionPyramid = "pyramid"
	ActionClose   = "close"
)

// Trade is one journal row. Close rows carry realized ROI and profit.
type Trade struct {
	ID        string    `json:"id"`
	WorkerID  string    `json:"workerId"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Action    string    `json:"action"`
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	ROI       float64   `json:"roi"`
	Profit    float64   `json:"profit"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats aggregates realized results over the journal's close rows.
type Stats struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalProfit float64 `json:"totalProfit"`
	AvgROI      float64 `json:"avgRoi"`
}

// Journal persists the trade history. Writes are best effort: trading never
// blocks on persistence, callers log and continue on error.
type Journal struct {
	db *sql.DB
}

// NewJournal applies the schema and returns the journal.
func NewJournal(database *Database) (*Journal, error) {
	if _, err := database.DB.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: database.DB}, nil
}

// RecordTrade inserts one trade row.
func (j *Journal) RecordTrade(ctx context.Context, t Trade) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (id, worker_id, symbol, side, action, qty, price, roi, profit, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.WorkerID, t.Symbol, t.Side, t.Action, t.Qty, t.Price, t.ROI, t.Profit, t.Reason)
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// RecordEvent inserts one lifecycle event row.
func (j *Journal) RecordEvent(ctx context.Context, workerID, kind, detail string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (id, worker_id, kind, detail) VALUES (?, ?, ?, ?)
	`, uuid.NewString(), workerID, kind, detail)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first.
func (j *Journal) ListTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, worker_id, symbol, side, action, qty, price, roi, profit, COALESCE(reason, ''), created_at
		FROM trades ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.WorkerID, &t.Symbol, &t.Side, &t.Action, &t.Qty, &t.Price, &t.ROI, &t.Profit, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TradeStats aggregates realized results across close rows.
func (j *Journal) TradeStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN profit > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN profit < 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(profit), 0),
		       COALESCE(AVG(roi), 0)
		FROM trades WHERE action = ?
	`, ActionClose).Scan(&s.Trades, &s.Wins, &s.Losses, &s.TotalProfit, &s.AvgROI)
	if err != nil {
		return Stats{}, fmt.Errorf("trade stats: %w", err)
	}
	return s, nil
}
