package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const OperationMarketplaceNormalize = "marketplace_normalize"

type marketplaceValueCount struct {
	MarketplaceId string
	RowCount      int64
}

var marketplaceTables = []struct {
	name  string
	model any
}{
	{"orders", &models.Order{}},
	{"financial_events", &models.FinancialEvent{}},
	{"ad_metrics", &models.AdMetric{}},
	{"inventory_records", &models.InventoryRecord{}},
}

// NormalizeMarketplaceIds rewrites country codes and domains stored as marketplace ids
// to canonical ids, one update per (table, value). A rewrite that collides with an
// existing canonical row is reported as failed and left as is.
func NormalizeMarketplaceIds(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts BackfillOptions) (report *BatchReport, err error) {
	if opts, err = opts.Normalize(); err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "workflow.NormalizeMarketplaceIds", opts.AccountId)
	defer func() { endSpan(span, err) }()

	report = NewBatchReport(OperationMarketplaceNormalize, opts.AccountId, uuid.NewString(), opts.DryRun)
	defer report.Finish()

	for _, t := range marketplaceTables {
		var values []marketplaceValueCount
		if err = db.WithContext(ctx).Model(t.model).
			Select("marketplace_id, COUNT(*) AS row_count").
			Where("account_id = ?", opts.AccountId).
			Group("marketplace_id").
			Order("marketplace_id").
			Scan(&values).Error; err != nil {
			config.LogError(logger, "marketplaceNormalize.go", "NormalizeMarketplaceIds", "list "+t.name, opts.AccountId, err)
			return report, err
		}
		for _, v := range values {
			if v.MarketplaceId == "" || utils.IsCanonicalMarketplaceID(v.MarketplaceId) {
				continue
			}
			id := fmt.Sprintf("%s:%s", t.name, v.MarketplaceId)
			canonical, ok := utils.NormalizeMarketplaceID(v.MarketplaceId)
			if !ok {
				report.Skip(id, "unknown marketplace value")
				continue
			}
			reason := fmt.Sprintf("%s -> %s (%d rows)", v.MarketplaceId, canonical, v.RowCount)
			if opts.DryRun {
				report.Changed(id, reason)
				continue
			}
			model, from, rows := t.model, v.MarketplaceId, v.RowCount
			txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return expectRows(tx.Model(model).
					Where("account_id = ? AND marketplace_id = ?", opts.AccountId, from).
					Update("marketplace_id", canonical), rows)
			})
			switch {
			case txErr == nil:
				report.Changed(id, reason)
			case isDuplicateKeyErr(txErr):
				report.Fail(id, fmt.Errorf("canonical rows already exist: %w", txErr))
			default:
				report.Fail(id, txErr)
				config.LogError(logger, "marketplaceNormalize.go", "NormalizeMarketplaceIds", "update "+t.name, opts.AccountId, txErr)
				err = txErr
				return report, err
			}
		}
	}
	logReport(logger, report)
	return report, nil
}
