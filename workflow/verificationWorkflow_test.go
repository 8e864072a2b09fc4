package workflow_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/testutil"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

func checkByName(t *testing.T, r *finance.VerificationReport, name string) finance.CheckResult {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s missing from report", name)
	return finance.CheckResult{}
}

func TestRunVerification_OrphanedEventFailsReport(t *testing.T) {
	db := testutil.OpenSQLite(t)
	const orderId = "306-9581646-5675560"
	seed(t, db,
		order(orderId, day("2024-03-10"), models.OrderStatusShipped, "45.00", item("SKU-1", 1, "45.00", "4.50")),
		event(models.EventTypeOrderRevenue, orderId, "SKU-1", "", day("2024-03-10"), "45.00"),
		event(models.EventTypeFee, orderId, "SKU-1", "Commission", day("2024-03-10"), "-6.75"),
		event(models.EventTypeFee, "999-0000000-0000000", "SKU-9", "Commission", day("2024-03-11"), "-1.00"),
	)

	report, err := workflow.RunVerification(context.Background(), db, nil, workflow.VerificationOptions{
		AccountId: testAccount,
		AsOf:      day("2024-03-31"),
	})
	if err != nil {
		t.Fatalf("verification: %v", err)
	}
	if report.Passed {
		t.Fatalf("report passed with an orphaned event")
	}
	if len(report.Checks) != 4 {
		t.Fatalf("checks=%d want 4", len(report.Checks))
	}
	xref := checkByName(t, report, finance.CheckCrossReference)
	if xref.Passed || xref.Counts["orphaned_events"] != 1 {
		t.Fatalf("cross reference=%+v", xref)
	}
	if xref.Counts["orders_without_events"] != 0 {
		t.Fatalf("orders without events=%d", xref.Counts["orders_without_events"])
	}
	if c := checkByName(t, report, finance.CheckDuplicateFees); !c.Passed {
		t.Fatalf("duplicate fees=%+v", c)
	}
	if c := checkByName(t, report, finance.CheckFeeTotals); !c.Passed || len(c.Warnings) != 0 {
		t.Fatalf("fee totals=%+v", c)
	}
	if report.CorrelationId == "" {
		t.Fatalf("report has no correlation id")
	}
}

func TestRunVerification_HighVatDayAndDuplicateFees(t *testing.T) {
	db := testutil.OpenSQLite(t)
	const orderId = "306-1111111-1111111"
	high := item("SKU-1", 1, "100.00", "45.00")
	high.IsPriceNet = true
	seed(t, db,
		order(orderId, day("2024-03-20"), models.OrderStatusShipped, "100.00", high),
		event(models.EventTypeOrderRevenue, orderId, "SKU-1", "", day("2024-03-20"), "100.00"),
		event(models.EventTypeFee, orderId, "SKU-1", "Commission", day("2024-03-20"), "-15.00"),
		event(models.EventTypeFee, orderId, "SKU-1", "Commission", day("2024-03-21"), "-15.00"),
	)

	report, err := workflow.RunVerification(context.Background(), db, nil, workflow.VerificationOptions{
		AccountId: testAccount,
		AsOf:      day("2024-03-31"),
	})
	if err != nil {
		t.Fatalf("verification: %v", err)
	}
	vat := checkByName(t, report, finance.CheckVatSanity)
	if vat.Passed || vat.Counts["days_flagged"] != 1 {
		t.Fatalf("vat sanity=%+v", vat)
	}
	dup := checkByName(t, report, finance.CheckDuplicateFees)
	if dup.Passed || dup.Counts["duplicate_groups"] != 1 || dup.Counts["duplicate_events"] != 2 {
		t.Fatalf("duplicate fees=%+v", dup)
	}
	if report.Passed {
		t.Fatalf("report passed")
	}
}

func TestRunVerification_LoaderFailureIsReported(t *testing.T) {
	db := testutil.OpenSQLite(t)
	if err := db.Migrator().DropTable(&models.FinancialEvent{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	report, err := workflow.RunVerification(context.Background(), db, nil, workflow.VerificationOptions{
		AccountId: testAccount,
		AsOf:      day("2024-03-31"),
	})
	if err != nil {
		t.Fatalf("verification returned error: %v", err)
	}
	dup := checkByName(t, report, finance.CheckDuplicateFees)
	if dup.Passed || dup.Error == "" {
		t.Fatalf("duplicate fees=%+v want failed with error", dup)
	}
	if vat := checkByName(t, report, finance.CheckVatSanity); vat.Error != "" {
		t.Fatalf("vat sanity should load orders: %+v", vat)
	}
	if report.Passed {
		t.Fatalf("report passed with a failed loader")
	}
}

func TestRunVerification_FeeTotalsCoverThirtyDays(t *testing.T) {
	db := testutil.OpenSQLite(t)
	seed(t, db,
		event(models.EventTypeFee, "306-0000000-0000001", "SKU-1", "Commission", day("2024-03-01"), "-4.00"),
		event(models.EventTypeFee, "306-0000000-0000002", "SKU-1", "Commission", day("2024-03-02"), "-2.50"),
	)

	report, err := workflow.RunVerification(context.Background(), db, nil, workflow.VerificationOptions{
		AccountId: testAccount,
		AsOf:      day("2024-03-31"),
	})
	if err != nil {
		t.Fatalf("verification: %v", err)
	}
	c := checkByName(t, report, finance.CheckFeeTotals)
	if c.Counts["fee_events"] != 1 {
		t.Fatalf("fee events=%d want 1, the 31st day back is outside the window", c.Counts["fee_events"])
	}
	if c.Details[len(c.Details)-1] != "total=2.50" {
		t.Fatalf("details=%v", c.Details)
	}
}
