package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binaryMarket() Market {
	return Market{
		ID:            "123",
		Slug:          "will-x-happen",
		Question:      "Will X happen?",
		ConditionID:   "0xabc",
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.995, 0.005},
		TokenIDs:      []string{"tok-yes", "tok-no"},
		StartTs:       1704067200, // 2024-01-01
		EndDateTs:     1706745600, // 2024-02-01
		ClosedTs:      1706659200, // 2024-01-31
	}
}

func TestMarketValidate(t *testing.T) {
	m := binaryMarket()
	require.NoError(t, m.Validate())

	m.ID = ""
	assert.Error(t, m.Validate())

	m = binaryMarket()
	m.OutcomePrices = []float64{0.5}
	assert.Error(t, m.Validate())

	m = binaryMarket()
	m.OutcomePrices = []float64{1.5, -0.5}
	assert.Error(t, m.Validate())
}

func TestIsYesNo(t *testing.T) {
	m := binaryMarket()
	assert.True(t, m.IsYesNo())

	m.Outcomes = []string{"No", "Yes"}
	assert.True(t, m.IsYesNo(), "outcome order must not matter")

	m.Outcomes = []string{" yes ", "NO"}
	assert.True(t, m.IsYesNo(), "whitespace and case must not matter")

	m.Outcomes = []string{"Up", "Down"}
	assert.False(t, m.IsYesNo())

	m.Outcomes = []string{"Yes", "No", "Maybe"}
	assert.False(t, m.IsYesNo())
}

func TestYesNoTokens(t *testing.T) {
	m := binaryMarket()
	yes, no, ok := m.YesNoTokens()
	require.True(t, ok)
	assert.Equal(t, "tok-yes", yes)
	assert.Equal(t, "tok-no", no)

	m.Outcomes = []string{"No", "Yes"}
	yes, no, ok = m.YesNoTokens()
	require.True(t, ok)
	assert.Equal(t, "tok-no", yes, "token order follows outcome order")
	assert.Equal(t, "tok-yes", no)

	m.TokenIDs = []string{"only-one"}
	_, _, ok = m.YesNoTokens()
	assert.False(t, ok)
}

func TestEffectiveEndTs(t *testing.T) {
	m := binaryMarket()
	assert.Equal(t, m.ClosedTs, m.EffectiveEndTs(), "closedTime wins")

	m.ClosedTs = 0
	assert.Equal(t, m.EndDateTs, m.EffectiveEndTs(), "endDate is the fallback")

	m.EndDateTs = 0
	m.UpdatedTs = 42
	assert.Equal(t, int64(42), m.EffectiveEndTs(), "updatedAt is the last resort")
}

func TestEffectiveRange(t *testing.T) {
	now := time.Unix(1706400000, 0).UTC() // 2024-01-28

	m := binaryMarket()
	start, end, ok := m.EffectiveRange(now)
	require.True(t, ok)
	assert.Equal(t, m.StartTs, start)
	assert.Equal(t, now.Unix(), end, "future end is clamped to now")

	past := time.Unix(1710000000, 0)
	_, end, ok = m.EffectiveRange(past)
	require.True(t, ok)
	assert.Equal(t, m.ClosedTs, end, "past end is left alone")

	m.StartTs = 0
	_, _, ok = m.EffectiveRange(now)
	assert.False(t, ok)

	m = binaryMarket()
	m.StartTs = m.ClosedTs + 100
	m.EndDateTs = 0
	_, _, ok = m.EffectiveRange(past)
	assert.False(t, ok, "end before start is invalid input")
}

func TestOutcomeProxy(t *testing.T) {
	m := binaryMarket()
	assert.Equal(t, ProxyYes, m.OutcomeProxy())

	m.OutcomePrices = []float64{0.005, 0.995}
	assert.Equal(t, ProxyNo, m.OutcomeProxy())

	m.OutcomePrices = []float64{0.6, 0.4}
	assert.Equal(t, ProxyUnknown, m.OutcomeProxy(), "unresolved prices give no proxy")

	m.Outcomes = []string{"No", "Yes"}
	m.OutcomePrices = []float64{0.005, 0.995}
	assert.Equal(t, ProxyYes, m.OutcomeProxy(), "proxy follows outcome labels, not positions")

	m.Outcomes = []string{"Up", "Down"}
	assert.Equal(t, ProxyUnknown, m.OutcomeProxy())
}

func TestTDays(t *testing.T) {
	m := binaryMarket()
	d, ok := m.TDays()
	require.True(t, ok)
	assert.InDelta(t, 31.0, d, 1e-9)

	m.EndDateTs = 0
	_, ok = m.TDays()
	assert.False(t, ok)

	m = binaryMarket()
	m.EndDateTs = m.StartTs - 1
	_, ok = m.TDays()
	assert.False(t, ok)
}

func TestDateHelpers(t *testing.T) {
	assert.Equal(t, "2024-01-01", DateOf(1704067200))
	assert.Equal(t, "2024-01-01", DateOf(1704067200+86_399))
	assert.Equal(t, "2024-01-02", DateOf(1704067200+86_400))

	r := DateRange(1704067200+3600, 1704240000) // mid-day start, 2024-01-03 end
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, r)

	assert.Empty(t, DateRange(1704240000, 1704067200), "inverted range yields nothing")
}
