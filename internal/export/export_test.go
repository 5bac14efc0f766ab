package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyharvest/polyharvest/internal/models"
)

func ptr(f float64) *float64 { return &f }

func TestWriteDailyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), DailyFile)
	rows := []models.DailyRow{
		{
			MarketID:     "1",
			Slug:         "will-x",
			Title:        "Will X,\nhappen?",
			Date:         "2024-01-01",
			YesPrice:     ptr(0.35),
			NoPrice:      nil,
			TotalVolume:  "1234.5",
			OutcomeProxy: "YES",
			UMAStatus:    "resolved",
			TDays:        ptr(31),
			StartTs:      1704067200,
			EndDateTs:    1706745600,
		},
	}
	require.NoError(t, WriteDailyRows(path, rows))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"market_id,slug,title,date,yes_price,no_price,total_volume,final_outcome_proxy,uma_resolution_status,T_days,start_ts,end_date_ts,closed_ts",
		lines[0])
	assert.Contains(t, lines[1], "Will X, happen?", "newlines are flattened")
	assert.Contains(t, lines[1], ",0.35,,", "unknown price stays empty, not zero")
	assert.True(t, strings.HasSuffix(lines[1], ",31,1704067200,1706745600,"), "zero closed_ts prints empty")
}

func TestWriteVolumeRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), VolumesFile)
	rows := []models.VolumeRow{
		{MarketID: "1", Date: "2024-01-01", Volume: decimal.RequireFromString("7"), TradeCount: 2},
		{MarketID: "1", Date: "2024-01-02", Truncated: true, Volume: decimal.Zero},
	}
	require.NoError(t, WriteVolumeRows(path, rows))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "market_id,date,daily_volume,trade_count,truncated", lines[0])
	assert.Equal(t, "1,2024-01-01,7,2,0", lines[1])
	assert.Equal(t, "1,2024-01-02,0,0,1", lines[2])
}

func TestRoundTripNeededDates(t *testing.T) {
	path := filepath.Join(t.TempDir(), DailyFile)
	rows := []models.DailyRow{
		{MarketID: "2", Date: "2024-01-02"},
		{MarketID: "1", Date: "2024-01-02"},
		{MarketID: "1", Date: "2024-01-01"},
		{MarketID: "1", Date: "2024-01-02"}, // duplicate
	}
	require.NoError(t, WriteDailyRows(path, rows))

	needed, err := ReadNeededDates(path)
	require.NoError(t, err)
	require.Len(t, needed, 2)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, needed["1"], "dates are deduplicated and sorted")
	assert.Equal(t, []string{"2024-01-02"}, needed["2"])
}

func TestRoundTripMarketTexts(t *testing.T) {
	path := filepath.Join(t.TempDir(), MarketTextsFile)
	texts := []models.MarketText{
		{MarketID: "1", Slug: "will-x", Title: "Will X?", Description: "Resolves YES if,\nsomething"},
		{MarketID: "2", Slug: "will-y", Title: "Will Y?"},
	}
	require.NoError(t, WriteMarketTexts(path, texts))

	got, err := ReadMarketTexts(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Will X?", got["will-x"].Title)
	assert.Equal(t, "Resolves YES if, something", got["will-x"].Description)
	assert.Equal(t, "1", got["will-x"].MarketID)
}

func TestReadDailySlugs(t *testing.T) {
	path := filepath.Join(t.TempDir(), DailyFile)
	rows := []models.DailyRow{
		{MarketID: "1", Slug: "b", Date: "2024-01-01"},
		{MarketID: "1", Slug: "b", Date: "2024-01-02"},
		{MarketID: "2", Slug: "a", Date: "2024-01-01"},
	}
	require.NoError(t, WriteDailyRows(path, rows))

	slugs, err := ReadDailySlugs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, slugs, "first-seen order, deduplicated")
}

func TestWriteClassifications(t *testing.T) {
	path := filepath.Join(t.TempDir(), ClassificationsFile)
	rows := []models.ClassificationRow{
		{Slug: "will-x", Type: "2", Domain: "finance", Date: "31/12/2026", Status: "ok"},
		{Slug: "will-y", Status: "error", Error: "invalid_response"},
	}
	require.NoError(t, WriteClassifications(path, rows))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "slug,type,domain,occurrence_or_deadline_ddmmyyyy,status,error", lines[0])
	assert.Equal(t, "will-x,2,finance,31/12/2026,ok,", lines[1])
	assert.Equal(t, "will-y,,,,error,invalid_response", lines[2])
}

func TestWriteMarketsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), MarketsFile)
	markets := []models.Market{
		{ID: "1", Slug: "will-x", ConditionID: "0xabc"},
		{ID: "2", Slug: "will-y"},
	}
	require.NoError(t, WriteMarketsJSONL(path, markets))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"condition_id":"0xabc"`)
}

func TestReadNeededDatesMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	_, err := ReadNeededDates(path)
	require.Error(t, err)
}
