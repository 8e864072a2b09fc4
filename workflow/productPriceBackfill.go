package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const OperationProductPriceBackfill = "product_price_backfill"

type ProductPriceResult struct {
	Report *BatchReport `json:"report"`
	// ZeroCostSkus lists products without a unit cost; their COGS is counted as zero.
	ZeroCostSkus []string `json:"zero_cost_skus"`
}

// AverageNetUnitPrice is the quantity-weighted net unit price of the sku's items across
// orders. ok is false when nothing was sold.
func AverageNetUnitPrice(orders []models.Order, sku string) (price decimal.Decimal, ok bool) {
	total := decimal.Zero
	var qty int64
	for _, o := range orders {
		for _, item := range o.Items {
			if item.Sku != sku || item.Quantity <= 0 {
				continue
			}
			total = total.Add(finance.NetLineAmount(o, item))
			qty += int64(item.Quantity)
		}
	}
	if qty == 0 {
		return decimal.Zero, false
	}
	return total.DivRound(decimal.NewFromInt(qty), 2), true
}

// BackfillProductPrices sets the price of products with a zero or negative price to the
// average net unit price they sold at.
func BackfillProductPrices(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts BackfillOptions) (result *ProductPriceResult, err error) {
	if opts, err = opts.Normalize(); err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "workflow.BackfillProductPrices", opts.AccountId)
	defer func() { endSpan(span, err) }()

	result = &ProductPriceResult{
		Report:       NewBatchReport(OperationProductPriceBackfill, opts.AccountId, uuid.NewString(), opts.DryRun),
		ZeroCostSkus: []string{},
	}
	defer result.Report.Finish()

	products, err := models.ListProducts(ctx, db, opts.AccountId)
	if err != nil {
		return result, err
	}

	var updates []PendingUpdate
	for _, p := range products {
		if !p.Cost.IsPositive() {
			result.ZeroCostSkus = append(result.ZeroCostSkus, p.Sku)
		}
		if p.Price.IsPositive() {
			continue
		}
		orders, err := models.ListOrderItemsBySku(ctx, db, opts.AccountId, p.Sku)
		if err != nil {
			config.LogError(logger, "productPriceBackfill.go", "BackfillProductPrices", "list sold items", p.Sku, err)
			return result, err
		}
		price, ok := AverageNetUnitPrice(orders, p.Sku)
		if !ok {
			result.Report.Skip(p.Sku, "no sold items")
			continue
		}
		productId := p.ID
		updates = append(updates, PendingUpdate{
			Id:     p.Sku,
			Reason: fmt.Sprintf("price %s -> %s", p.Price.StringFixed(2), price.StringFixed(2)),
			Apply: func(tx *gorm.DB) error {
				return expectRows(tx.Model(&models.Product{}).
					Where("account_id = ? AND id = ?", opts.AccountId, productId).
					Update("price", price), 1)
			},
		})
	}

	if err = ApplyUpdates(ctx, db, result.Report, updates, opts.BatchSize); err != nil {
		config.LogError(logger, "productPriceBackfill.go", "BackfillProductPrices", "update prices", opts.AccountId, err)
		return result, err
	}
	logReport(logger, result.Report)
	return result, nil
}
