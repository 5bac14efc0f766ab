package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polyharvest/polyharvest/internal/aggregate"
	"github.com/polyharvest/polyharvest/internal/models"
	"github.com/polyharvest/polyharvest/internal/polymarket"
	"github.com/polyharvest/polyharvest/internal/storage"
)

// Daily discovers closed Yes/No markets and reconstructs their daily
// YES/NO probability series.
type Daily struct {
	gamma  *polymarket.GammaClient
	clob   *polymarket.ClobClient
	store  storage.Store // optional
	logger *slog.Logger

	// now is swapped out by tests.
	now func() time.Time
}

// NewDaily wires a daily-series pipeline. store may be nil to skip the
// analytical sink.
func NewDaily(gamma *polymarket.GammaClient, clob *polymarket.ClobClient, store storage.Store, logger *slog.Logger) *Daily {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daily{
		gamma:  gamma,
		clob:   clob,
		store:  store,
		logger: logger.With("pipeline", "daily"),
		now:    time.Now,
	}
}

// DailySummary counts the outcomes of one discovery-and-series run.
type DailySummary struct {
	RunID       string
	Discovered  int
	YesNoOK     int
	DateOK      int
	TokensOK    int
	Selected    int
	PriceFailed int
}

// DailyResult bundles the artifacts of one run: the forward-filled rows,
// the title/description texts for classification, and the selected
// markets themselves.
type DailyResult struct {
	Rows    []models.DailyRow
	Texts   []models.MarketText
	Markets []models.Market
}

// Run discovers closed markets ending on or after cutoffTs, keeps the
// binary Yes/No ones with two price tokens, and builds a forward-filled
// daily row per (market, date). Markets whose price history cannot be
// fetched are skipped and counted; the batch always completes.
func (p *Daily) Run(ctx context.Context, q polymarket.DiscoveryQuery, cutoffTs int64) (DailyResult, DailySummary, error) {
	summary := DailySummary{RunID: uuid.NewString()}

	markets, err := p.gamma.ListClosedMarkets(ctx, q)
	if err != nil {
		return DailyResult{}, summary, fmt.Errorf("discover closed markets: %w", err)
	}
	summary.Discovered = len(markets)

	selected := p.filter(markets, cutoffTs, &summary)
	summary.Selected = len(selected)
	p.logger.Info("discovery complete",
		"run_id", summary.RunID,
		"discovered", summary.Discovered,
		"yesno_ok", summary.YesNoOK,
		"date_ok", summary.DateOK,
		"tokens_ok", summary.TokensOK,
		"selected", summary.Selected)

	var result DailyResult
	for i := range selected {
		if err := ctx.Err(); err != nil {
			return DailyResult{}, summary, err
		}
		market := &selected[i]
		p.logger.Info("building daily series", "run_id", summary.RunID, "slug", market.Slug, "progress", fmt.Sprintf("%d/%d", i+1, len(selected)))

		rows, err := p.seriesRows(ctx, market)
		if err != nil {
			p.logger.Warn("price history failed", "slug", market.Slug, "error", err)
			summary.PriceFailed++
			continue
		}

		result.Rows = append(result.Rows, rows...)
		result.Texts = append(result.Texts, models.MarketText{
			MarketID:    market.ID,
			Slug:        market.Slug,
			Title:       market.Question,
			Description: market.Description,
		})
		result.Markets = append(result.Markets, *market)
	}

	if p.store != nil {
		if err := p.store.StoreDailyRows(ctx, summary.RunID, result.Rows); err != nil {
			return DailyResult{}, summary, fmt.Errorf("store daily rows: %w", err)
		}
	}

	p.logger.Info("daily run complete",
		"run_id", summary.RunID,
		"markets", len(result.Markets),
		"rows", len(result.Rows),
		"price_failed", summary.PriceFailed)
	return result, summary, nil
}

// filter keeps closed binary Yes/No markets that ended on or after the
// cutoff and carry exactly two price tokens.
func (p *Daily) filter(markets []models.Market, cutoffTs int64, summary *DailySummary) []models.Market {
	var selected []models.Market
	for i := range markets {
		m := &markets[i]
		if !m.IsYesNo() {
			continue
		}
		summary.YesNoOK++

		end := m.EffectiveEndTs()
		if end == 0 || end < cutoffTs {
			continue
		}
		summary.DateOK++

		if len(m.TokenIDs) != 2 {
			continue
		}
		summary.TokensOK++

		selected = append(selected, *m)
	}
	return selected
}

// seriesRows fetches both tokens' daily prices over the market's
// effective range and merges them by forward-fill.
func (p *Daily) seriesRows(ctx context.Context, market *models.Market) ([]models.DailyRow, error) {
	yesToken, noToken, ok := market.YesNoTokens()
	if !ok {
		return nil, fmt.Errorf("market %s: no yes/no token mapping", market.ID)
	}
	start, end, ok := market.EffectiveRange(p.now())
	if !ok {
		p.logger.Debug("market range invalid, skipping", "slug", market.Slug)
		return nil, nil
	}

	yesHist, err := p.clob.DailyPrices(ctx, yesToken, start, end)
	if err != nil {
		return nil, err
	}
	noHist, err := p.clob.DailyPrices(ctx, noToken, start, end)
	if err != nil {
		return nil, err
	}

	proxy := market.OutcomeProxy()
	var tdays *float64
	if d, ok := market.TDays(); ok {
		tdays = &d
	}

	points := aggregate.MergeDaily(yesHist, noHist, start, end)
	rows := make([]models.DailyRow, 0, len(points))
	for _, pt := range points {
		rows = append(rows, models.DailyRow{
			MarketID:     market.ID,
			Slug:         market.Slug,
			Title:        market.Question,
			Date:         pt.Date,
			YesPrice:     pt.Yes,
			NoPrice:      pt.No,
			TotalVolume:  market.TotalVolume,
			OutcomeProxy: proxy,
			UMAStatus:    market.UMAStatus,
			TDays:        tdays,
			StartTs:      market.StartTs,
			EndDateTs:    market.EndDateTs,
			ClosedTs:     market.ClosedTs,
		})
	}
	return rows, nil
}
