package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyharvest/polyharvest/internal/models"
)

func newTestStore(t *testing.T) *DuckDBStore {
	t.Helper()
	store, err := NewDuckDBStore(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func ptr(f float64) *float64 { return &f }

func TestStoreDailyRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []models.DailyRow{
		{MarketID: "1", Slug: "will-x", Title: "Will X?", Date: "2024-01-01", YesPrice: ptr(0.3), TotalVolume: "12.5", OutcomeProxy: "YES", StartTs: 1704067200},
		{MarketID: "1", Slug: "will-x", Title: "Will X?", Date: "2024-01-02", YesPrice: ptr(0.4), NoPrice: ptr(0.6), TotalVolume: "12.5"},
	}
	require.NoError(t, store.StoreDailyRows(ctx, "run-1", rows))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT count(*) FROM daily_rows WHERE run_id = 'run-1'").Scan(&count))
	assert.Equal(t, 2, count)

	var noPrice *float64
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT no_price FROM daily_rows WHERE market_id = '1' AND date = DATE '2024-01-01'").Scan(&noPrice))
	assert.Nil(t, noPrice, "unknown price stores as NULL")

	// Re-inserting the same run replaces rather than duplicates.
	require.NoError(t, store.StoreDailyRows(ctx, "run-1", rows))
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT count(*) FROM daily_rows").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestStoreVolumeRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []models.VolumeRow{
		{MarketID: "1", Date: "2024-01-01", Volume: decimal.RequireFromString("7"), TradeCount: 2},
		{MarketID: "1", Date: "2024-01-02", Volume: decimal.Zero, Truncated: true},
	}
	require.NoError(t, store.StoreVolumeRows(ctx, "run-1", rows))

	var vol float64
	var trunc bool
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT daily_volume, truncated FROM volume_rows WHERE date = DATE '2024-01-01'").Scan(&vol, &trunc))
	assert.Equal(t, 7.0, vol)
	assert.False(t, trunc)

	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT daily_volume, truncated FROM volume_rows WHERE date = DATE '2024-01-02'").Scan(&vol, &trunc))
	assert.Zero(t, vol)
	assert.True(t, trunc)
}

func TestStoreEmptyBatchIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	assert.NoError(t, store.StoreDailyRows(ctx, "run-1", nil))
	assert.NoError(t, store.StoreVolumeRows(ctx, "run-1", nil))
}
