// Package sqlite persists settled trades so a session's history survives
// restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

// HistoryStore writes one row per settled trade and reads them back by
// session.
type HistoryStore struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the history store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewHistoryStore opens (or creates) the trade-history database.
func NewHistoryStore(cfg Config) (*HistoryStore, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for history store: %w", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/derivbot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory %q: %w", filepath.Dir(dbPath), err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database %q: %w", dbPath, err)
	}

	// The Go driver benefits from a single connection; SQLite serializes
	// writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &HistoryStore{db: db, logger: cfg.Logger}
	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	cfg.Logger.Info(context.Background(), "trade history store opened", map[string]interface{}{"path": dbPath})
	return store, nil
}

func (s *HistoryStore) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		market TEXT NOT NULL,
		target TEXT NOT NULL,
		stake TEXT NOT NULL,
		profit TEXT NOT NULL,
		win INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_session ON trade_history (session_id, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveEntry inserts one settled trade.
func (s *HistoryStore) SaveEntry(ctx context.Context, entry domain.HistoryEntry) error {
	const query = `
	INSERT INTO trade_history (session_id, market, target, stake, profit, win, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	win := 0
	if entry.Win {
		win = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		entry.SessionID, entry.Market, entry.Target,
		entry.Stake.StringFixed(2), entry.Profit.StringFixed(2), win, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting trade for session %s: %w", entry.SessionID, ports.ErrInsertFailed)
	}
	s.logger.Debug(ctx, "trade history row saved", map[string]interface{}{
		"session": entry.SessionID, "market": entry.Market,
	})
	return nil
}

// FindBySession returns a session's trades, oldest first.
func (s *HistoryStore) FindBySession(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error) {
	const query = `
	SELECT session_id, market, target, stake, profit, win, created_at
	FROM trade_history
	WHERE session_id = ?
	ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying trades for session %s: %w", sessionID, ports.ErrQueryFailed)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		var stake, profit string
		var win int
		if err := rows.Scan(&entry.SessionID, &entry.Market, &entry.Target, &stake, &profit, &win, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning trade row: %w", ports.ErrQueryFailed)
		}
		entry.Stake, err = decimal.NewFromString(stake)
		if err != nil {
			return nil, fmt.Errorf("parsing stake %q: %w", stake, ports.ErrQueryFailed)
		}
		entry.Profit, err = decimal.NewFromString(profit)
		if err != nil {
			return nil, fmt.Errorf("parsing profit %q: %w", profit, ports.ErrQueryFailed)
		}
		entry.Win = win == 1
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trade rows: %w", ports.ErrQueryFailed)
	}
	return entries, nil
}

// TotalProfit sums the recorded profit over every session.
func (s *HistoryStore) TotalProfit(ctx context.Context) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(CAST(profit AS REAL)), 0) FROM trade_history`

	var total float64
	if err := s.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("summing profit: %w", ports.ErrQueryFailed)
	}
	return decimal.NewFromFloat(total).Round(2), nil
}
