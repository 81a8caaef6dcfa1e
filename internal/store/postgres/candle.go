package postgres

import (
	"context"
	"errors"
	"fmt"

	"chartengine/internal/model"

	"github.com/jackc/pgx/v5"
)

// ReadSeries returns the latest limit candles for symbol/tf in ascending
// time order, with prices converted from NUMERIC to float64.
func (db *Database) ReadSeries(ctx context.Context, symbol string, tf int, limit int) (model.Series, error) {
	rows, err := db.candles.LatestCandles(ctx, symbol, tf, limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCandles
		}
		return nil, fmt.Errorf("read candles %s/%d: %w", symbol, tf, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoCandles
	}
	return convertCandles(rows), nil
}

func convertCandles(rows []candleRow) model.Series {
	out := make(model.Series, 0, len(rows))
	for _, r := range rows {
		c := model.Candle{
			Time:  r.TS,
			Open:  r.Open.InexactFloat64(),
			High:  r.High.InexactFloat64(),
			Low:   r.Low.InexactFloat64(),
			Close: r.Close.InexactFloat64(),
		}
		if r.Volume.Valid {
			v := r.Volume.Decimal.InexactFloat64()
			c.Volume = &v
		}
		out = append(out, c)
	}
	return out
}
