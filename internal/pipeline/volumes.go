// Package pipeline orchestrates the harvester's batch runs: discovery of
// closed markets with daily price series, per-market daily volume
// aggregation, and text classification. Each run walks its entities one
// at a time through the cache-then-fetch-then-store cycle; one entity's
// failure is isolated to that entity and never aborts the batch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/polyharvest/polyharvest/internal/aggregate"
	"github.com/polyharvest/polyharvest/internal/cache"
	"github.com/polyharvest/polyharvest/internal/models"
	"github.com/polyharvest/polyharvest/internal/polymarket"
	"github.com/polyharvest/polyharvest/internal/storage"
)

// Cache keys are prefixed per identifier namespace.
const (
	gammaKeyPrefix  = "gamma_"
	aggKeyPrefix    = "agg_"
	tradesKeyPrefix = "trades_"
)

// Volumes builds the per-day traded volume table for a set of markets.
type Volumes struct {
	gamma  *polymarket.GammaClient
	data   *polymarket.DataClient
	cache  *cache.Cache
	store  storage.Store // optional
	logger *slog.Logger
}

// NewVolumes wires a volume pipeline. store may be nil to skip the
// analytical sink.
func NewVolumes(gamma *polymarket.GammaClient, data *polymarket.DataClient, c *cache.Cache, store storage.Store, logger *slog.Logger) *Volumes {
	if logger == nil {
		logger = slog.Default()
	}
	return &Volumes{
		gamma:  gamma,
		data:   data,
		cache:  c,
		store:  store,
		logger: logger.With("pipeline", "volumes"),
	}
}

// VolumesSummary counts the outcomes of one volume run.
type VolumesSummary struct {
	RunID        string
	Markets      int
	OK           int
	GammaFailed  int
	TradesFailed int
	Truncated    int
}

// Run produces one volume row per (market, needed date). Markets whose
// metadata or trade history cannot be fetched contribute zero-filled rows
// and are counted as failures; the batch always completes.
func (p *Volumes) Run(ctx context.Context, needed map[string][]string) ([]models.VolumeRow, VolumesSummary, error) {
	summary := VolumesSummary{RunID: uuid.NewString(), Markets: len(needed)}

	marketIDs := make([]string, 0, len(needed))
	for id := range needed {
		marketIDs = append(marketIDs, id)
	}
	sort.Strings(marketIDs)

	var rows []models.VolumeRow
	for i, marketID := range marketIDs {
		if err := ctx.Err(); err != nil {
			return nil, summary, err
		}
		p.logger.Info("aggregating market", "run_id", summary.RunID, "market_id", marketID, "progress", fmt.Sprintf("%d/%d", i+1, len(marketIDs)))

		market, err := p.fetchMarket(ctx, marketID)
		if err != nil || market.ConditionID == "" {
			if err != nil {
				p.logger.Warn("metadata fetch failed", "market_id", marketID, "error", err)
			} else {
				p.logger.Warn("market has no condition id", "market_id", marketID)
			}
			summary.GammaFailed++
			rows = append(rows, zeroVolumeRows(marketID, needed[marketID])...)
			continue
		}

		res, err := p.aggregation(ctx, market.ConditionID)
		if err != nil {
			p.logger.Warn("trade fetch failed", "market_id", marketID, "condition_id", market.ConditionID, "error", err)
			summary.TradesFailed++
			rows = append(rows, zeroVolumeRows(marketID, needed[marketID])...)
			continue
		}
		if res.Truncated {
			summary.Truncated++
		}

		rows = append(rows, aggregate.VolumeRows(marketID, needed[marketID], res)...)
		summary.OK++
	}

	if p.store != nil {
		if err := p.store.StoreVolumeRows(ctx, summary.RunID, rows); err != nil {
			return nil, summary, fmt.Errorf("store volume rows: %w", err)
		}
	}

	p.logger.Info("volume run complete",
		"run_id", summary.RunID,
		"markets", summary.Markets,
		"ok", summary.OK,
		"gamma_fail", summary.GammaFailed,
		"trades_fail", summary.TradesFailed,
		"truncated", summary.Truncated)
	return rows, summary, nil
}

// fetchMarket returns the market metadata, consulting the cache first.
func (p *Volumes) fetchMarket(ctx context.Context, marketID string) (*models.Market, error) {
	key := gammaKeyPrefix + marketID
	var cached models.Market
	if p.cache.Get(key, &cached) {
		return &cached, nil
	}
	market, err := p.gamma.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Put(key, market); err != nil {
		p.logger.Warn("metadata cache write failed", "market_id", marketID, "error", err)
	}
	return market, nil
}

// aggregation returns the daily aggregate for a condition id. A cached
// result short-circuits both recomputation and trade re-fetching; the
// cache write happens only after a fully successful aggregation.
func (p *Volumes) aggregation(ctx context.Context, conditionID string) (models.AggregationResult, error) {
	key := aggKeyPrefix + conditionID
	var cached models.AggregationResult
	if p.cache.Get(key, &cached) {
		return cached, nil
	}

	history, err := p.data.FetchTrades(ctx, conditionID, p.cache.TradeLog(tradesKeyPrefix+conditionID))
	if err != nil {
		return models.AggregationResult{}, err
	}
	res := aggregate.Trades(history.Records, history.Truncated)
	if err := p.cache.Put(key, res); err != nil {
		p.logger.Warn("aggregation cache write failed", "condition_id", conditionID, "error", err)
	}
	return res, nil
}

func zeroVolumeRows(marketID string, dates []string) []models.VolumeRow {
	rows := make([]models.VolumeRow, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, models.VolumeRow{MarketID: marketID, Date: d})
	}
	return rows
}
