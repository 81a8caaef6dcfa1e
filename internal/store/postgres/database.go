// Package postgres reads candles from a Postgres table with NUMERIC prices.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNoCandles = errors.New("no candles found in datasource")

// candleRow is one row of the candles table.
type candleRow struct {
	TS     int64
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.NullDecimal
}

type candlesRepository interface {
	LatestCandles(ctx context.Context, symbol string, tf int, limit int) ([]candleRow, error)
}

// Database holds the connection pool and queries.
type Database struct {
	candles candlesRepository
	conn    *pgxpool.Pool
}

// NewDatabase connects to dbURL and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}

	return &Database{candles: &queries{pool: conn}, conn: conn}, nil
}

// Ping checks the pool.
func (db *Database) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Close closes the pool.
func (db *Database) Close() error {
	if db.conn != nil {
		db.conn.Close()
	}
	return nil
}

type queries struct {
	pool *pgxpool.Pool
}

const latestCandles = `
SELECT ts, open, high, low, close, volume FROM (
	SELECT ts, open, high, low, close, volume FROM candles
	WHERE symbol = $1 AND tf = $2
	ORDER BY ts DESC
	LIMIT $3
) latest ORDER BY ts ASC`

func (q *queries) LatestCandles(ctx context.Context, symbol string, tf int, limit int) ([]candleRow, error) {
	var lim any = limit
	if limit <= 0 {
		lim = nil // LIMIT NULL reads all
	}
	rows, err := q.pool.Query(ctx, latestCandles, symbol, tf, lim)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (candleRow, error) {
		var r candleRow
		err := row.Scan(&r.TS, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume)
		return r, err
	})
}
