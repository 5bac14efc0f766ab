// Package polymarket provides the REST clients for the three Polymarket
// APIs the harvester consumes: Gamma (market metadata and discovery), the
// Data API (historical trades), and the CLOB (daily price history). All
// requests go through the shared resilient transport; this package adds
// the endpoint shapes, the pagination and windowing strategies each
// endpoint needs, and the typed classification of the capacity-limit
// conditions the upstreams only signal through error text.
package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/polyharvest/polyharvest/internal/models"
)

// APIMarket is a market as returned by the Gamma API. The outcomes,
// prices, and token-id fields arrive either as JSON arrays or as
// JSON-encoded strings (e.g. "[\"Yes\",\"No\"]"), so they are captured raw
// and decoded leniently.
type APIMarket struct {
	ID                  string          `json:"id"`
	Question            string          `json:"question"`
	Slug                string          `json:"slug"`
	Description         string          `json:"description"`
	ConditionID         string          `json:"conditionId"`
	Outcomes            json.RawMessage `json:"outcomes"`
	OutcomePrices       json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs        json.RawMessage `json:"clobTokenIds"`
	StartDate           string          `json:"startDate"`
	CreatedAt           string          `json:"createdAt"`
	EndDate             string          `json:"endDate"`
	ClosedTime          string          `json:"closedTime"`
	UpdatedAt           string          `json:"updatedAt"`
	Volume              string          `json:"volume"`
	VolumeNum           *float64        `json:"volumeNum"`
	UMAResolutionStatus string          `json:"umaResolutionStatus"`
	Closed              bool            `json:"closed"`
}

// ToModel converts the API representation into the domain model, parsing
// the JSON-encoded list fields and the assorted timestamp formats.
func (m *APIMarket) ToModel() models.Market {
	out := models.Market{
		ID:          m.ID,
		Slug:        m.Slug,
		Question:    m.Question,
		Description: m.Description,
		ConditionID: m.ConditionID,
		UMAStatus:   m.UMAResolutionStatus,
		Closed:      m.Closed,
	}

	out.Outcomes = decodeStringList(m.Outcomes)
	out.OutcomePrices = decodeFloatList(m.OutcomePrices)
	out.TokenIDs = decodeStringList(m.ClobTokenIDs)

	out.StartTs = parseEventTime(m.StartDate)
	if out.StartTs == 0 {
		out.StartTs = parseEventTime(m.CreatedAt)
	}
	out.EndDateTs = parseEventTime(m.EndDate)
	out.ClosedTs = parseEventTime(m.ClosedTime)
	out.UpdatedTs = parseEventTime(m.UpdatedAt)

	if m.VolumeNum != nil {
		out.TotalVolume = strconv.FormatFloat(*m.VolumeNum, 'f', -1, 64)
	} else {
		out.TotalVolume = m.Volume
	}
	return out
}

// decodeStringList accepts either a JSON array of strings or a
// JSON-encoded string containing one, returning nil on anything else.
func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var direct []string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	var nested []string
	if err := json.Unmarshal([]byte(encoded), &nested); err != nil {
		return nil
	}
	return nested
}

// decodeFloatList accepts a JSON array of numbers or number strings,
// possibly itself JSON-encoded into a string.
func decodeFloatList(raw json.RawMessage) []float64 {
	toFloats := func(items []json.RawMessage) []float64 {
		out := make([]float64, 0, len(items))
		for _, item := range items {
			s := strings.Trim(strings.TrimSpace(string(item)), `"`)
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil
			}
			out = append(out, f)
		}
		return out
	}

	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return toFloats(items)
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return nil
	}
	return toFloats(items)
}

// parseEventTime coerces the timestamp forms Gamma is known to emit into
// Unix seconds: RFC 3339, "2006-01-02 15:04:05+00" variants, and bare
// epoch values in seconds or milliseconds. Unparseable input yields 0.
func parseEventTime(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	// Bare epoch, seconds or milliseconds.
	if isDigits(s) {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0
		}
		if v > 10_000_000_000 {
			return v / 1000
		}
		return v
	}

	// Normalize the space-separated and bare "+00" offset variants.
	if strings.Contains(s, " ") && !strings.Contains(s, "T") {
		s = strings.Replace(s, " ", "T", 1)
	}
	if strings.HasSuffix(s, "+00") {
		s += ":00"
	}
	s = strings.Replace(s, "Z", "+00:00", 1)

	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
