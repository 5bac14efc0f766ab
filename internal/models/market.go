// Package models provides the domain data structures for the harvester:
// market metadata, raw trades, per-day aggregates, and the tabular rows
// emitted by the pipelines. Identifier namespaces are kept distinct
// throughout: a market id addresses Gamma metadata, a condition id
// addresses trade history, and a token id addresses one outcome's price
// series. Callers must not conflate them.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Market is the metadata for one prediction market, converted from the
// upstream Gamma API representation. Timestamps are Unix seconds in UTC;
// zero means the upstream did not supply the field.
type Market struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Question      string    `json:"question"`
	Description   string    `json:"description,omitempty"`
	ConditionID   string    `json:"condition_id"`
	Outcomes      []string  `json:"outcomes"`
	OutcomePrices []float64 `json:"outcome_prices"`
	TokenIDs      []string  `json:"token_ids"` // CLOB token ids, same order as Outcomes
	StartTs       int64     `json:"start_ts"`
	EndDateTs     int64     `json:"end_date_ts"`
	ClosedTs      int64     `json:"closed_ts"`
	UpdatedTs     int64     `json:"updated_ts"`
	TotalVolume   string    `json:"total_volume"` // upstream volumeNum/volume, verbatim
	UMAStatus     string    `json:"uma_status,omitempty"`
	Closed        bool      `json:"closed"`
}

// Outcome proxy values inferred from final outcome prices.
const (
	ProxyYes     = "YES"
	ProxyNo      = "NO"
	ProxyUnknown = ""
)

// Validate checks the fields every pipeline depends on.
func (m *Market) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("market id must not be empty")
	}
	if len(m.Outcomes) != len(m.OutcomePrices) && len(m.OutcomePrices) != 0 {
		return fmt.Errorf("market %s: %d outcomes but %d prices", m.ID, len(m.Outcomes), len(m.OutcomePrices))
	}
	for _, p := range m.OutcomePrices {
		if p < 0 || p > 1 {
			return fmt.Errorf("market %s: outcome price %v outside [0,1]", m.ID, p)
		}
	}
	return nil
}

// IsYesNo reports whether the market is a binary Yes/No market, in either
// outcome order.
func (m *Market) IsYesNo() bool {
	if len(m.Outcomes) != 2 {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(m.Outcomes[0]))
	b := strings.ToLower(strings.TrimSpace(m.Outcomes[1]))
	return (a == "yes" && b == "no") || (a == "no" && b == "yes")
}

// YesNoTokens maps the market's two CLOB token ids to the YES and NO
// outcomes. ok is false when the market is not a Yes/No market or does not
// carry exactly two token ids.
func (m *Market) YesNoTokens() (yes, no string, ok bool) {
	if !m.IsYesNo() || len(m.TokenIDs) != 2 {
		return "", "", false
	}
	if strings.EqualFold(strings.TrimSpace(m.Outcomes[0]), "yes") {
		return m.TokenIDs[0], m.TokenIDs[1], true
	}
	return m.TokenIDs[1], m.TokenIDs[0], true
}

// EffectiveEndTs is the timestamp the market effectively ended at:
// closedTime when present, otherwise endDate, otherwise updatedAt.
func (m *Market) EffectiveEndTs() int64 {
	if m.ClosedTs != 0 {
		return m.ClosedTs
	}
	if m.EndDateTs != 0 {
		return m.EndDateTs
	}
	return m.UpdatedTs
}

// EffectiveRange bounds the market's daily series. The end is clamped to
// now when the nominal end lies in the future. ok is false when either
// bound is missing or the computed end precedes the start; such markets
// are skipped as invalid input.
func (m *Market) EffectiveRange(now time.Time) (start, end int64, ok bool) {
	start = m.StartTs
	end = m.EffectiveEndTs()
	if start == 0 || end == 0 {
		return 0, 0, false
	}
	if nowTs := now.UTC().Unix(); end > nowTs {
		end = nowTs
	}
	if end < start {
		return 0, 0, false
	}
	return start, end, true
}

// OutcomeProxy infers the final resolution from the last observed outcome
// prices: YES when the Yes price is pinned to ~1 and No to ~0, NO for the
// converse, and unknown otherwise. This is a proxy, not an authoritative
// resolution.
func (m *Market) OutcomeProxy() string {
	if len(m.Outcomes) != 2 || len(m.OutcomePrices) != 2 {
		return ProxyUnknown
	}
	yesIdx := -1
	for i, o := range m.Outcomes {
		if strings.EqualFold(strings.TrimSpace(o), "yes") {
			yesIdx = i
		}
	}
	noIdx := -1
	for i, o := range m.Outcomes {
		if strings.EqualFold(strings.TrimSpace(o), "no") {
			noIdx = i
		}
	}
	if yesIdx < 0 || noIdx < 0 {
		return ProxyUnknown
	}
	yesP := m.OutcomePrices[yesIdx]
	noP := m.OutcomePrices[noIdx]
	switch {
	case yesP >= 0.99 && noP <= 0.01:
		return ProxyYes
	case noP >= 0.99 && yesP <= 0.01:
		return ProxyNo
	default:
		return ProxyUnknown
	}
}

// TDays is the market's nominal lifetime in days, computed from endDate
// and startDate (not from closedTime). ok is false when either bound is
// missing or endDate precedes startDate.
func (m *Market) TDays() (float64, bool) {
	if m.StartTs == 0 || m.EndDateTs == 0 || m.EndDateTs < m.StartTs {
		return 0, false
	}
	return float64(m.EndDateTs-m.StartTs) / 86400.0, true
}
