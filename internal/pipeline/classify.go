package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polyharvest/polyharvest/internal/classify"
	"github.com/polyharvest/polyharvest/internal/models"
)

// Classify runs the text classification step over the markets of a daily
// series.
type Classify struct {
	client       *classify.Client
	delay        time.Duration // pause between markets
	failureDelay time.Duration // extra pause after a failed market
	logger       *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewClassify wires a classification pipeline.
func NewClassify(client *classify.Client, delay, failureDelay time.Duration, logger *slog.Logger) *Classify {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classify{
		client:       client,
		delay:        delay,
		failureDelay: failureDelay,
		logger:       logger.With("pipeline", "classify"),
		sleep:        sleepCtx,
	}
}

// ClassifySummary counts the outcomes of one classification run.
type ClassifySummary struct {
	RunID   string
	Markets int
	OK      int
	Invalid int
	Failed  int
}

// Run classifies every slug that has a text entry, in the given order.
// Markets whose requests fail or whose responses never validate get an
// error row; the batch always completes.
func (p *Classify) Run(ctx context.Context, slugs []string, texts map[string]models.MarketText) ([]models.ClassificationRow, ClassifySummary, error) {
	summary := ClassifySummary{RunID: uuid.NewString()}

	var rows []models.ClassificationRow
	for _, slug := range slugs {
		text, ok := texts[slug]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, summary, err
		}
		summary.Markets++

		verdict, err := p.client.Classify(ctx, text.Title, text.Description)
		switch {
		case err == nil:
			rows = append(rows, models.ClassificationRow{
				Slug:   slug,
				Type:   verdict.Type,
				Domain: verdict.Domain,
				Date:   verdict.Date,
				Status: "ok",
			})
			summary.OK++
		case errors.Is(err, classify.ErrInvalidResponse):
			p.logger.Warn("classification invalid", "slug", slug)
			rows = append(rows, models.ClassificationRow{Slug: slug, Status: "error", Error: "invalid_response"})
			summary.Invalid++
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, summary, err
		default:
			p.logger.Warn("classification request failed", "slug", slug, "error", err)
			rows = append(rows, models.ClassificationRow{Slug: slug, Status: "error", Error: "request_failed"})
			summary.Failed++
		}

		if err := p.pace(ctx, err != nil); err != nil {
			return nil, summary, err
		}
	}

	p.logger.Info("classification run complete",
		"run_id", summary.RunID,
		"markets", summary.Markets,
		"ok", summary.OK,
		"invalid", summary.Invalid,
		"failed", summary.Failed)
	return rows, summary, nil
}

func (p *Classify) pace(ctx context.Context, failed bool) error {
	if p.delay > 0 {
		if err := p.sleep(ctx, p.delay); err != nil {
			return err
		}
	}
	if failed && p.failureDelay > 0 {
		return p.sleep(ctx, p.failureDelay)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
