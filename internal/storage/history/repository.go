// Package history retains terminal position records and the trade log in
// SQLite for later analysis. The engine never reads this data back on the
// trade path.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sniper/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	mint         TEXT    NOT NULL,
	venue        TEXT    NOT NULL,
	entry_price  TEXT    NOT NULL,
	entry_amount TEXT    NOT NULL,
	sold         TEXT    NOT NULL,
	remaining    TEXT    NOT NULL,
	realized_pnl TEXT    NOT NULL,
	state        TEXT    NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	closed_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	mint      TEXT    NOT NULL,
	venue     TEXT    NOT NULL,
	direction TEXT    NOT NULL,
	success   INTEGER NOT NULL,
	pnl       TEXT    NOT NULL,
	ts        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_mint ON positions(mint);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
`

// Repository stores terminal positions and trade outcomes in SQLite.
type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRepository opens (or creates) the database at path.
func NewRepository(path string, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data directory for %s", path)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping database %s", path)
	}

	// the sqlite driver benefits from a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize history schema")
	}

	logger.Info("history database ready", zap.String("path", path))

	return &Repository{db: db, logger: logger}, nil
}

// SavePosition records a terminal position with its realized result.
func (r *Repository) SavePosition(ctx context.Context, p *domain.Position, realizedPnL decimal.Decimal, closedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO positions (mint, venue, entry_price, entry_amount, sold, remaining, realized_pnl, state, created_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Asset.Mint, string(p.Asset.Venue),
		p.EntryPrice.String(), p.EntryAmount.String(), p.Sold.String(), p.Remaining.String(),
		realizedPnL.String(), string(p.State), p.CreatedAt, closedAt)
	return errors.Wrapf(err, "save position %s", p.Asset.String())
}

// SaveTrade appends one trade outcome to the log.
func (r *Repository) SaveTrade(ctx context.Context, o domain.TradeOutcome) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO trades (mint, venue, direction, success, pnl, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		o.Asset.Mint, string(o.Asset.Venue), string(o.Direction), o.Success, o.ProfitLoss.String(), o.Timestamp)
	return errors.Wrapf(err, "save trade for %s", o.Asset.String())
}

// ClosedPositionRecord is one row of the positions table.
type ClosedPositionRecord struct {
	Mint        string          `json:"mint"`
	Venue       string          `json:"venue"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	EntryAmount decimal.Decimal `json:"entry_amount"`
	Sold        decimal.Decimal `json:"sold"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	State       string          `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// RecentPositions returns up to limit terminal positions, newest first.
func (r *Repository) RecentPositions(ctx context.Context, limit int) ([]ClosedPositionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT mint, venue, entry_price, entry_amount, sold, realized_pnl, state, created_at, closed_at
		 FROM positions ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query recent positions")
	}
	defer rows.Close()

	var records []ClosedPositionRecord
	for rows.Next() {
		var rec ClosedPositionRecord
		var entryPrice, entryAmount, sold, pnl string
		if err := rows.Scan(&rec.Mint, &rec.Venue, &entryPrice, &entryAmount, &sold, &pnl, &rec.State, &rec.CreatedAt, &rec.ClosedAt); err != nil {
			return nil, errors.Wrap(err, "scan position row")
		}
		if rec.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
			return nil, errors.Wrap(err, "parse entry price")
		}
		if rec.EntryAmount, err = decimal.NewFromString(entryAmount); err != nil {
			return nil, errors.Wrap(err, "parse entry amount")
		}
		if rec.Sold, err = decimal.NewFromString(sold); err != nil {
			return nil, errors.Wrap(err, "parse sold")
		}
		if rec.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, errors.Wrap(err, "parse realized pnl")
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}
