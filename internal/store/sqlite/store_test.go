package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"chartengine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "candles.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func candles(start int64, step int64, closes ...float64) model.Series {
	out := make(model.Series, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Time: start + int64(i)*step, Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func TestStore_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	in := candles(1_700_000_000, 60, 100, 101, 102, 103, 104)
	vol := 12.5
	in[2].Volume = &vol
	require.NoError(t, s.WriteCandles(ctx, "BTCUSD", 60, in))

	got, err := s.ReadSeries(ctx, "BTCUSD", 60, 0)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.NoError(t, model.ValidateSeries(got))
}

func TestStore_ReadLatestAscending(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.WriteCandles(ctx, "ETHUSD", 3600, candles(1_700_000_000, 3600, 1, 2, 3, 4, 5, 6)))

	got, err := s.ReadSeries(ctx, "ETHUSD", 3600, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, got.Closes())
}

func TestStore_UpsertAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.WriteCandles(ctx, "X", 60, candles(100, 60, 1, 2)))
	require.NoError(t, s.WriteCandles(ctx, "X", 60, candles(160, 60, 9)))
	require.NoError(t, s.WriteCandles(ctx, "X", 300, candles(100, 300, 50)))

	got, err := s.ReadSeries(ctx, "X", 60, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 9}, got.Closes())

	ts, err := s.LastTimestamp(ctx, "X", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(160), ts)
}

func TestStore_NoCandles(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, err := s.ReadSeries(ctx, "NOPE", 60, 10)
	assert.ErrorIs(t, err, ErrNoCandles)

	ts, err := s.LastTimestamp(ctx, "NOPE", 60)
	require.NoError(t, err)
	assert.Zero(t, ts)
	assert.NoError(t, s.Ping(ctx))
}
