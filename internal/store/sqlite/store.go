package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"chartengine/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoCandles is returned when a symbol/timeframe has no stored candles.
var ErrNoCandles = errors.New("no candles stored")

// Store reads and writes candles in a SQLite database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path with WAL mode and the schema.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With("component", "sqlite")
	log.Info("opened database", "path", path)
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT    NOT NULL,
			tf     INTEGER NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (symbol, tf, ts)
		);
	`)
	return err
}

// WriteCandles upserts candles for symbol/tf in a single transaction.
func (s *Store) WriteCandles(ctx context.Context, symbol string, tf int, candles model.Series) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		var vol sql.NullFloat64
		if c.Volume != nil {
			vol = sql.NullFloat64{Float64: *c.Volume, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, symbol, tf, c.Time, c.Open, c.High, c.Low, c.Close, vol); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert candle %s@%d: %w", symbol, c.Time, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("committed candles", "symbol", symbol, "tf", tf, "count", len(candles))
	return nil
}

// ReadSeries returns the latest limit candles for symbol/tf in ascending
// time order. limit <= 0 reads all.
func (s *Store) ReadSeries(ctx context.Context, symbol string, tf int, limit int) (model.Series, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume FROM candles
			WHERE symbol = ? AND tf = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("read candles %s/%d: %w", symbol, tf, err)
	}
	defer rows.Close()

	var out model.Series
	for rows.Next() {
		var (
			c   model.Candle
			vol sql.NullFloat64
		)
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return nil, err
		}
		if vol.Valid {
			v := vol.Float64
			c.Volume = &v
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", symbol, model.TFLabel(tf), ErrNoCandles)
	}
	return out, nil
}

// LastTimestamp returns the newest stored candle time, or 0 if none.
func (s *Store) LastTimestamp(ctx context.Context, symbol string, tf int) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?", symbol, tf,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
