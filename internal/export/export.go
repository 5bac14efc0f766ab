// Package export reads and writes the harvester's tabular artifacts: the
// daily price series, daily volumes, market texts, classification
// metadata, and the raw market dump. CSV files carry a header row; JSONL
// files carry one document per line.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/polyharvest/polyharvest/internal/models"
)

// File names produced under the output directory.
const (
	DailyFile           = "daily.csv"
	VolumesFile         = "daily_volumes.csv"
	MarketTextsFile     = "market_texts.csv"
	MarketsFile         = "markets.jsonl"
	ClassificationsFile = "market_metadata.csv"
)

var dailyHeader = []string{
	"market_id", "slug", "title", "date",
	"yes_price", "no_price", "total_volume",
	"final_outcome_proxy", "uma_resolution_status",
	"T_days", "start_ts", "end_date_ts", "closed_ts",
}

// WriteDailyRows writes the forward-filled daily series.
func WriteDailyRows(path string, rows []models.DailyRow) error {
	return writeCSV(path, dailyHeader, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			r.MarketID, r.Slug, sanitizeText(r.Title), r.Date,
			formatPrice(r.YesPrice), formatPrice(r.NoPrice), r.TotalVolume,
			r.OutcomeProxy, r.UMAStatus,
			formatFloat(r.TDays), formatTs(r.StartTs), formatTs(r.EndDateTs), formatTs(r.ClosedTs),
		}
	})
}

var volumesHeader = []string{"market_id", "date", "daily_volume", "trade_count", "truncated"}

// WriteVolumeRows writes the per-day volume table. The truncated column is
// 0/1.
func WriteVolumeRows(path string, rows []models.VolumeRow) error {
	return writeCSV(path, volumesHeader, len(rows), func(i int) []string {
		r := rows[i]
		trunc := "0"
		if r.Truncated {
			trunc = "1"
		}
		return []string{r.MarketID, r.Date, r.Volume.String(), strconv.Itoa(r.TradeCount), trunc}
	})
}

var textsHeader = []string{"market_id", "slug", "title", "description"}

// WriteMarketTexts writes one row of title/description per market for the
// classification step.
func WriteMarketTexts(path string, texts []models.MarketText) error {
	return writeCSV(path, textsHeader, len(texts), func(i int) []string {
		t := texts[i]
		return []string{t.MarketID, t.Slug, sanitizeText(t.Title), sanitizeText(t.Description)}
	})
}

var classificationsHeader = []string{"slug", "type", "domain", "occurrence_or_deadline_ddmmyyyy", "status", "error"}

// WriteClassifications writes the classification metadata table.
func WriteClassifications(path string, rows []models.ClassificationRow) error {
	return writeCSV(path, classificationsHeader, len(rows), func(i int) []string {
		r := rows[i]
		return []string{r.Slug, r.Type, r.Domain, r.Date, r.Status, r.Error}
	})
}

// WriteMarketsJSONL dumps the selected markets one JSON document per line.
func WriteMarketsJSONL(path string, markets []models.Market) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := range markets {
		if err := enc.Encode(&markets[i]); err != nil {
			return fmt.Errorf("export: write %s: %w", path, err)
		}
	}
	return nil
}

// ReadNeededDates reads a daily series file and returns the sorted set of
// dates each market id appears with. Rows missing either field are
// skipped.
func ReadNeededDates(path string) (map[string][]string, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idCol, dateCol := indexOf(header, "market_id"), indexOf(header, "date")
	if idCol < 0 || dateCol < 0 {
		return nil, fmt.Errorf("export: %s: missing market_id or date column", path)
	}

	seen := make(map[string]map[string]bool)
	for _, rec := range records {
		if len(rec) <= idCol || len(rec) <= dateCol {
			continue
		}
		id, date := rec[idCol], rec[dateCol]
		if id == "" || date == "" {
			continue
		}
		if seen[id] == nil {
			seen[id] = make(map[string]bool)
		}
		seen[id][date] = true
	}

	needed := make(map[string][]string, len(seen))
	for id, dates := range seen {
		list := make([]string, 0, len(dates))
		for d := range dates {
			list = append(list, d)
		}
		sort.Strings(list)
		needed[id] = list
	}
	return needed, nil
}

// ReadMarketTexts reads the texts file back as slug-keyed title and
// description pairs.
func ReadMarketTexts(path string) (map[string]models.MarketText, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idCol := indexOf(header, "market_id")
	slugCol := indexOf(header, "slug")
	titleCol := indexOf(header, "title")
	descCol := indexOf(header, "description")
	if slugCol < 0 || titleCol < 0 {
		return nil, fmt.Errorf("export: %s: missing slug or title column", path)
	}

	texts := make(map[string]models.MarketText)
	for _, rec := range records {
		if len(rec) <= slugCol || rec[slugCol] == "" {
			continue
		}
		t := models.MarketText{Slug: rec[slugCol], Title: rec[titleCol]}
		if idCol >= 0 && len(rec) > idCol {
			t.MarketID = rec[idCol]
		}
		if descCol >= 0 && len(rec) > descCol {
			t.Description = rec[descCol]
		}
		texts[t.Slug] = t
	}
	return texts, nil
}

// ReadDailySlugs returns the distinct slugs of a daily series file in
// first-seen order.
func ReadDailySlugs(path string) ([]string, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	slugCol := indexOf(header, "slug")
	if slugCol < 0 {
		return nil, fmt.Errorf("export: %s: missing slug column", path)
	}

	var slugs []string
	seen := make(map[string]bool)
	for _, rec := range records {
		if len(rec) <= slugCol {
			continue
		}
		slug := rec[slugCol]
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		slugs = append(slugs, slug)
	}
	return slugs, nil
}

func writeCSV(path string, header []string, n int, row func(int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return fmt.Errorf("export: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush %s: %w", path, err)
	}
	return nil
}

func readCSV(path string) (records [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("export: read %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[1:], all[0], nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// sanitizeText flattens newlines so text fields stay single-line.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatTs(ts int64) string {
	if ts == 0 {
		return ""
	}
	return strconv.FormatInt(ts, 10)
}
