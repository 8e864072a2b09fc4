package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/models/reports"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"gorm.io/gorm"
)

// prefilterSlack widens the SQL date window so rows near a boundary in another
// timezone reach the engine, which applies the exact range.
const prefilterSlack = 24 * time.Hour

var ErrInvalidRange = errors.New("date range is inverted")

// LoadFeeCategoryTable builds the lookup from the stored mappings.
func LoadFeeCategoryTable(ctx context.Context, db *gorm.DB) (finance.FeeCategoryTable, error) {
	mappings, err := models.ListFeeCategoryMappings(ctx, db)
	if err != nil {
		return finance.FeeCategoryTable{}, err
	}
	return finance.NewFeeCategoryTable(mappings), nil
}

// LoadSummaryInput reads the candidate rows for filter.
func LoadSummaryInput(ctx context.Context, db *gorm.DB, filter finance.SummaryFilter) (finance.SummaryInput, error) {
	input := finance.SummaryInput{Filter: filter}
	from := filter.Range.From.Add(-prefilterSlack)
	to := filter.Range.To.Add(prefilterSlack)

	var err error
	if input.Orders, err = models.ListOrdersForPeriod(ctx, db, filter.AccountId, from, to, filter.MarketplaceId); err != nil {
		return input, err
	}
	if input.Events, err = models.ListFinancialEventsForPeriod(ctx, db, filter.AccountId, from, to, filter.MarketplaceId); err != nil {
		return input, err
	}
	if input.AdMetrics, err = models.ListAdMetricsForPeriod(ctx, db, filter.AccountId, from, to, filter.MarketplaceId); err != nil {
		return input, err
	}
	if input.Products, err = models.ListProductsBySku(ctx, db, filter.AccountId); err != nil {
		return input, err
	}
	if input.FeeCategories, err = LoadFeeCategoryTable(ctx, db); err != nil {
		return input, err
	}
	return input, nil
}

// GetReconciliationSummary computes the summary for filter, through the report cache
// when it is enabled.
func GetReconciliationSummary(ctx context.Context, db *gorm.DB, filter finance.SummaryFilter) (summary finance.Summary, err error) {
	filter.AccountId = strings.TrimSpace(filter.AccountId)
	if filter.AccountId == "" {
		return summary, utils.ErrAccountRequired
	}
	if filter.Range.To.Before(filter.Range.From) {
		return summary, ErrInvalidRange
	}
	if mp, ok := utils.NormalizeMarketplaceID(filter.MarketplaceId); ok {
		filter.MarketplaceId = mp
	}

	ctx, span := startSpan(ctx, "workflow.GetReconciliationSummary", filter.AccountId)
	defer func() { endSpan(span, err) }()

	started := time.Now()
	defer reports.LogSlowReport(ctx, "reconciliation_summary", started, map[string]any{
		"from": filter.Range.From, "to": filter.Range.To, "marketplace_id": filter.MarketplaceId, "sku": filter.Sku,
	})

	return reports.CachedSummary(ctx, filter, func() (finance.Summary, error) {
		input, err := LoadSummaryInput(ctx, db, filter)
		if err != nil {
			return finance.Summary{}, err
		}
		return finance.Summarize(input), nil
	})
}

// GetOrderBalance reconstructs the balance of one order from its stored events.
func GetOrderBalance(ctx context.Context, db *gorm.DB, accountId string, amazonOrderId string) (*finance.OrderBalance, error) {
	accountId = strings.TrimSpace(accountId)
	if accountId == "" {
		return nil, utils.ErrAccountRequired
	}
	events, err := models.ListFinancialEventsByOrder(ctx, db, accountId, amazonOrderId)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		if _, err := models.GetOrderByAmazonId(ctx, db, accountId, amazonOrderId); err != nil {
			return nil, err
		}
	}
	table, err := LoadFeeCategoryTable(ctx, db)
	if err != nil {
		return nil, err
	}
	balance := finance.BuildOrderBalance(amazonOrderId, events, table)
	return &balance, nil
}
