package workflow

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/models/reports"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SummaryExporter receives rebuilt daily summaries (e.g. a warehouse table).
type SummaryExporter interface {
	InsertDailySummaries(ctx context.Context, rows []models.DailySummary) error
}

type DailySummaryOptions struct {
	AccountId string
	From      time.Time
	To        time.Time
	DryRun    bool
	Exporter  SummaryExporter
}

type DailySummaryResult struct {
	AccountId string                `json:"account_id"`
	From      time.Time             `json:"from"`
	To        time.Time             `json:"to"`
	DryRun    bool                  `json:"dry_run"`
	Upserted  int                   `json:"upserted"`
	Deleted   int                   `json:"deleted"`
	Exported  int                   `json:"exported"`
	Rows      []models.DailySummary `json:"rows"`
}

func summaryKey(marketplaceId string, day time.Time) string {
	return marketplaceId + "|" + day.UTC().Format(utils.DateLayout)
}

// BackfillDailySummaries rebuilds daily_summaries for [From, To] in one transaction:
// rows with activity are upserted and rows for days that no longer have any are deleted.
func BackfillDailySummaries(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts DailySummaryOptions) (result *DailySummaryResult, err error) {
	accountId := strings.TrimSpace(opts.AccountId)
	if accountId == "" {
		return nil, utils.ErrAccountRequired
	}
	from := opts.From.UTC()
	to := utils.EndOfDay(opts.To.UTC())
	if to.Before(from) {
		return nil, ErrInvalidRange
	}

	ctx, span := startSpan(ctx, "workflow.BackfillDailySummaries", accountId)
	defer func() { endSpan(span, err) }()

	filter := finance.SummaryFilter{AccountId: accountId, Range: finance.DateRange{From: from, To: to}}
	input, err := LoadSummaryInput(ctx, db, filter)
	if err != nil {
		return nil, err
	}
	rows := finance.BuildDailySummaries(input, from, to)
	result = &DailySummaryResult{AccountId: accountId, From: from, To: to, DryRun: opts.DryRun, Rows: rows}

	existing, err := models.ListDailySummaries(ctx, db, accountId, from, to)
	if err != nil {
		return result, err
	}
	fresh := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		fresh[summaryKey(r.MarketplaceId, r.SummaryDate)] = struct{}{}
	}
	var stale []models.DailySummary
	for _, r := range existing {
		if _, ok := fresh[summaryKey(r.MarketplaceId, r.SummaryDate)]; !ok {
			stale = append(stale, r)
		}
	}
	result.Upserted = len(rows)
	result.Deleted = len(stale)
	if opts.DryRun {
		return result, nil
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range utils.ChunkSlice(rows, config.DedupBatchSize()) {
			if err := models.UpsertDailySummaries(ctx, tx, chunk); err != nil {
				return err
			}
		}
		for _, r := range stale {
			if err := tx.Where("account_id = ? AND marketplace_id = ? AND summary_date = ?", accountId, r.MarketplaceId, r.SummaryDate).
				Delete(&models.DailySummary{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "dailySummaryBackfill.go", "BackfillDailySummaries", "write daily summaries", accountId, err)
		return result, err
	}
	if err := reports.InvalidateAccountSummaries(ctx, accountId); err != nil {
		config.LogError(logger, "dailySummaryBackfill.go", "BackfillDailySummaries", "invalidate report cache", accountId, err)
	}

	if opts.Exporter != nil && len(rows) > 0 {
		if err = opts.Exporter.InsertDailySummaries(ctx, rows); err != nil {
			config.LogError(logger, "dailySummaryBackfill.go", "BackfillDailySummaries", "export daily summaries", accountId, err)
			return result, err
		}
		result.Exported = len(rows)
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":      "BackfillDailySummaries",
			"account_id": accountId,
			"from":       from.Format(utils.DateLayout),
			"to":         to.Format(utils.DateLayout),
			"upserted":   result.Upserted,
			"deleted":    result.Deleted,
			"exported":   result.Exported,
		}).Info("daily summaries rebuilt")
	}
	return result, nil
}
