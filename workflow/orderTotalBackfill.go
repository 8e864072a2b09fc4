package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const OperationOrderTotalBackfill = "order_total_backfill"

// BackfillOrderTotals rewrites stored order totals that disagree with their items.
// Pending and Unshipped orders are skipped since their totals are computed on the fly;
// Canceled orders and orders without items are skipped too.
func BackfillOrderTotals(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts BackfillOptions) (report *BatchReport, err error) {
	if opts, err = opts.Normalize(); err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "workflow.BackfillOrderTotals", opts.AccountId)
	defer func() { endSpan(span, err) }()

	report = NewBatchReport(OperationOrderTotalBackfill, opts.AccountId, uuid.NewString(), opts.DryRun)
	defer report.Finish()

	var updates []PendingUpdate
	err = models.ScanOrders(ctx, db, opts.AccountId, opts.BatchSize, opts.MaxRows, func(batch []models.Order) error {
		for _, o := range batch {
			switch {
			case o.Status.IsProvisional():
				continue
			case o.Status == models.OrderStatusCanceled:
				continue
			case len(o.Items) == 0:
				report.Skip(o.AmazonOrderId, "order has no items")
				continue
			case finance.OrderTotalConsistent(o):
				continue
			}
			orderId := o.ID
			expected := finance.ExpectedOrderTotal(o).Round(4)
			updates = append(updates, PendingUpdate{
				Id:     o.AmazonOrderId,
				Reason: fmt.Sprintf("total %s -> %s", o.TotalAmount.StringFixed(2), expected.StringFixed(2)),
				Apply: func(tx *gorm.DB) error {
					return expectRows(tx.Model(&models.Order{}).
						Where("account_id = ? AND id = ?", opts.AccountId, orderId).
						Update("total_amount", expected), 1)
				},
			})
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "orderTotalBackfill.go", "BackfillOrderTotals", "scan orders", opts.AccountId, err)
		return report, err
	}

	if err = ApplyUpdates(ctx, db, report, updates, opts.BatchSize); err != nil {
		config.LogError(logger, "orderTotalBackfill.go", "BackfillOrderTotals", "update order totals", opts.AccountId, err)
		return report, err
	}
	logReport(logger, report)
	return report, nil
}

func logReport(logger *logrus.Logger, r *BatchReport) {
	if logger == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"field":       r.Operation,
		"account_id":  r.AccountId,
		"run_id":      r.RunId,
		"dry_run":     r.DryRun,
		"applied":     r.Applied,
		"would_apply": r.WouldApply,
		"skipped":     r.Skipped,
		"failed":      r.Failed,
	}).Info("maintenance run completed")
}
