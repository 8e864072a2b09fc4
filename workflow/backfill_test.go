package workflow_test

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/testutil"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

func TestBackfillOrderTotals(t *testing.T) {
	db := testutil.OpenSQLite(t)
	ctx := context.Background()
	stale := order("306-0000000-0000001", day("2024-03-10"), models.OrderStatusShipped, "10.00", item("SKU-1", 2, "29.20", "0"))
	pending := order("306-0000000-0000002", day("2024-03-10"), models.OrderStatusPending, "0", item("SKU-1", 1, "29.20", "0"))
	good := order("306-0000000-0000003", day("2024-03-10"), models.OrderStatusShipped, "29.20", item("SKU-1", 1, "29.20", "0"))
	empty := order("306-0000000-0000004", day("2024-03-10"), models.OrderStatusShipped, "5.00")
	seed(t, db, stale, pending, good, empty)

	if _, err := workflow.BackfillOrderTotals(ctx, db, nil, workflow.BackfillOptions{AccountId: testAccount}); !errors.Is(err, utils.ErrConfirmRequired) {
		t.Fatalf("live run without confirm err=%v", err)
	}

	dry, err := workflow.BackfillOrderTotals(ctx, db, nil, workflow.BackfillOptions{AccountId: testAccount, DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.WouldApply != 1 || dry.Skipped != 1 {
		t.Fatalf("dry run would_apply=%d skipped=%d", dry.WouldApply, dry.Skipped)
	}
	stored, _ := models.GetOrderByAmazonId(ctx, db, testAccount, stale.AmazonOrderId)
	if !stored.TotalAmount.Equal(dec("10")) {
		t.Fatalf("dry run wrote total %s", stored.TotalAmount)
	}

	live, err := workflow.BackfillOrderTotals(ctx, db, nil, workflow.BackfillOptions{AccountId: testAccount, Confirm: workflow.ConfirmUpdate})
	if err != nil {
		t.Fatalf("live run: %v", err)
	}
	if live.Applied != 1 || live.Failed != 0 {
		t.Fatalf("live applied=%d failed=%d", live.Applied, live.Failed)
	}
	stored, _ = models.GetOrderByAmazonId(ctx, db, testAccount, stale.AmazonOrderId)
	if !stored.TotalAmount.Equal(dec("58.40")) {
		t.Fatalf("total=%s want 58.40", stored.TotalAmount)
	}
	stored, _ = models.GetOrderByAmazonId(ctx, db, testAccount, pending.AmazonOrderId)
	if !stored.TotalAmount.IsZero() {
		t.Fatalf("pending order total rewritten to %s", stored.TotalAmount)
	}
}

func TestNormalizeMarketplaceIds(t *testing.T) {
	db := testutil.OpenSQLite(t)
	ctx := context.Background()
	de := order("306-0000000-0000001", day("2024-03-10"), models.OrderStatusShipped, "1.00")
	de.MarketplaceId = "DE"
	uk := order("306-0000000-0000002", day("2024-03-10"), models.OrderStatusShipped, "1.00")
	uk.MarketplaceId = "amazon.co.uk"
	odd := order("306-0000000-0000003", day("2024-03-10"), models.OrderStatusShipped, "1.00")
	odd.MarketplaceId = "moon"
	ev := event(models.EventTypeOrderRevenue, "306-0000000-0000001", "SKU-1", "", day("2024-03-10"), "1.00")
	ev.MarketplaceId = "DE"
	seed(t, db, de, uk, odd, ev)

	report, err := workflow.NormalizeMarketplaceIds(ctx, db, nil, workflow.BackfillOptions{AccountId: testAccount, Confirm: workflow.ConfirmUpdate})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if report.Applied != 3 || report.Skipped != 1 {
		t.Fatalf("applied=%d skipped=%d results=%+v", report.Applied, report.Skipped, report.Results)
	}
	stored, _ := models.GetOrderByAmazonId(ctx, db, testAccount, uk.AmazonOrderId)
	if stored.MarketplaceId != "A1F83G8C2ARO7P" {
		t.Fatalf("uk marketplace=%s", stored.MarketplaceId)
	}
	var n int64
	db.Model(&models.FinancialEvent{}).Where("marketplace_id = ?", marketDE).Count(&n)
	if n != 1 {
		t.Fatalf("events normalized=%d", n)
	}
	stored, _ = models.GetOrderByAmazonId(ctx, db, testAccount, odd.AmazonOrderId)
	if stored.MarketplaceId != "moon" {
		t.Fatalf("unknown value rewritten to %s", stored.MarketplaceId)
	}
}

func TestBackfillProductPrices(t *testing.T) {
	db := testutil.OpenSQLite(t)
	ctx := context.Background()
	b2b := order("306-0000000-0000002", day("2024-03-11"), models.OrderStatusShipped, "13.00", item("SKU-1", 1, "13.00", "2.47"))
	b2b.IsBusinessOrder = true
	seed(t, db,
		&models.Product{AccountId: testAccount, Sku: "SKU-1", Price: dec("0"), Cost: dec("0")},
		&models.Product{AccountId: testAccount, Sku: "SKU-2", Price: dec("20"), Cost: dec("5")},
		&models.Product{AccountId: testAccount, Sku: "SKU-3", Price: dec("0"), Cost: dec("4")},
		order("306-0000000-0000001", day("2024-03-10"), models.OrderStatusShipped, "23.80", item("SKU-1", 2, "11.90", "3.80")),
		b2b,
		order("306-0000000-0000003", day("2024-03-12"), models.OrderStatusCanceled, "100.00", item("SKU-1", 1, "100.00", "0")),
	)

	res, err := workflow.BackfillProductPrices(ctx, db, nil, workflow.BackfillOptions{AccountId: testAccount, Confirm: workflow.ConfirmUpdate})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Report.Applied != 1 || res.Report.Skipped != 1 {
		t.Fatalf("applied=%d skipped=%d", res.Report.Applied, res.Report.Skipped)
	}
	products, _ := models.ListProductsBySku(ctx, db, testAccount)
	if p := products["SKU-1"]; !p.Price.Equal(dec("11")) {
		t.Fatalf("SKU-1 price=%s want 11.00", p.Price)
	}
	if p := products["SKU-2"]; !p.Price.Equal(dec("20")) {
		t.Fatalf("SKU-2 price changed to %s", p.Price)
	}
	if len(res.ZeroCostSkus) != 1 || res.ZeroCostSkus[0] != "SKU-1" {
		t.Fatalf("zero cost skus=%v", res.ZeroCostSkus)
	}
}

type recordingExporter struct {
	rows []models.DailySummary
}

func (e *recordingExporter) InsertDailySummaries(ctx context.Context, rows []models.DailySummary) error {
	e.rows = append(e.rows, rows...)
	return nil
}

func TestBackfillDailySummaries(t *testing.T) {
	db := testutil.OpenSQLite(t)
	ctx := context.Background()
	const orderId = "306-9581646-5675560"
	fr := event(models.EventTypeOrderRevenue, "306-2", "SKU-2", "", day("2024-03-11"), "30.00")
	fr.MarketplaceId = "A13V1IB3VIYZZH"
	seed(t, db,
		order(orderId, day("2024-03-10"), models.OrderStatusShipped, "45.00", item("SKU-1", 1, "45.00", "0")),
		event(models.EventTypeOrderRevenue, orderId, "SKU-1", "", day("2024-03-10"), "45.00"),
		event(models.EventTypeFee, orderId, "SKU-1", "Commission", day("2024-03-10"), "-6.75"),
		fr,
		&models.DailySummary{AccountId: testAccount, MarketplaceId: marketDE, SummaryDate: day("2024-03-05"), Revenue: dec("1")},
	)

	exporter := &recordingExporter{}
	res, err := workflow.BackfillDailySummaries(ctx, db, nil, workflow.DailySummaryOptions{
		AccountId: testAccount,
		From:      day("2024-03-01"),
		To:        day("2024-03-31"),
		Exporter:  exporter,
	})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Upserted != 2 || res.Deleted != 1 || res.Exported != 2 || len(exporter.rows) != 2 {
		t.Fatalf("upserted=%d deleted=%d exported=%d", res.Upserted, res.Deleted, res.Exported)
	}

	rows, err := models.ListDailySummaries(ctx, db, testAccount, day("2024-03-01"), day("2024-03-31"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("stored rows=%d want 2", len(rows))
	}
	first := rows[0]
	if first.MarketplaceId != marketDE || !first.Revenue.Equal(dec("45")) || !first.Fees.Equal(dec("6.75")) || first.Orders != 1 {
		t.Fatalf("first row=%+v", first)
	}
	if !rows[1].Revenue.Equal(dec("30")) {
		t.Fatalf("second row=%+v", rows[1])
	}
}
