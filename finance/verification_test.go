package finance_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
)

func TestDuplicateFees(t *testing.T) {
	events := []models.FinancialEvent{
		feeEvent(1, "o-1", "SKU", "Commission", "-2.00"),
		feeEvent(2, "o-1", "SKU", "Commission", "-2.00"),
		feeEvent(3, "o-1", "SKU", "FBAPerUnitFulfillmentFee", "-3.00"),
		{ID: 4, EventType: models.EventTypeServiceFee, Amount: dec("-39"), FeeType: ptr("Subscription")},
		{ID: 5, EventType: models.EventTypeServiceFee, Amount: dec("-39"), FeeType: ptr("Subscription")},
	}
	c := finance.DuplicateFees(events)
	if c.Passed {
		t.Fatalf("expected failure")
	}
	if c.Counts["duplicate_groups"] != 1 || c.Counts["duplicate_events"] != 2 {
		t.Fatalf("counts = %v", c.Counts)
	}
	if len(c.Details) != 1 {
		t.Fatalf("details = %v", c.Details)
	}

	if clean := finance.DuplicateFees(events[2:]); !clean.Passed {
		t.Fatalf("order-less subscription fees must not count as duplicates: %v", clean.Details)
	}
}

func TestVatSanity(t *testing.T) {
	orders := []models.Order{
		{
			AccountId: testAccount, PurchaseDate: day("2024-03-10"), Status: models.OrderStatusShipped,
			Items: []models.OrderItem{{Quantity: 1, ItemPrice: dec("100.00"), ItemTax: dec("45.00"), IsPriceNet: true}},
		},
		{
			AccountId: testAccount, PurchaseDate: day("2024-03-09"), Status: models.OrderStatusShipped,
			Items: []models.OrderItem{{Quantity: 1, ItemPrice: dec("100.00"), ItemTax: dec("19.00"), IsPriceNet: true}},
		},
	}
	c := finance.VatSanity(orders, utils.EndOfDay(day("2024-03-10")))
	if c.Passed {
		t.Fatalf("45%% VAT day should fail the check")
	}
	if c.Counts["days_checked"] != 2 || c.Counts["days_flagged"] != 1 {
		t.Fatalf("counts = %v", c.Counts)
	}

	days := finance.VatByDay(orders, utils.EndOfDay(day("2024-03-10")), 10)
	if days[0].Day != "2024-03-10" || !days[0].Percent.Equal(dec("45")) || days[0].Issue == "" {
		t.Fatalf("first day = %+v", days[0])
	}
	if days[1].Issue != "" {
		t.Fatalf("19%% day should not be flagged: %+v", days[1])
	}
}

func TestVatByDay_LastTenDaysAndEdgeCases(t *testing.T) {
	var orders []models.Order
	for i := 1; i <= 12; i++ {
		orders = append(orders, models.Order{
			PurchaseDate: day("2024-03-01").AddDate(0, 0, i-1),
			Status:       models.OrderStatusShipped,
			Items:        []models.OrderItem{{Quantity: 1, ItemPrice: dec("10"), ItemTax: dec("1.9"), IsPriceNet: true}},
		})
	}
	orders = append(orders,
		models.Order{PurchaseDate: day("2024-03-12"), Status: models.OrderStatusCanceled,
			Items: []models.OrderItem{{Quantity: 1, ItemPrice: dec("10"), ItemTax: dec("9")}}},
		models.Order{PurchaseDate: day("2024-03-11"), Status: models.OrderStatusShipped,
			Items: []models.OrderItem{{Quantity: 1, ItemPrice: dec("0"), ItemTax: dec("0"), ShippingTax: dec("-5.00"), IsPriceNet: true}}},
	)
	days := finance.VatByDay(orders, utils.EndOfDay(day("2024-03-12")), finance.VatSanityDays)
	if len(days) != 10 {
		t.Fatalf("days = %d, want 10", len(days))
	}
	if days[0].Day != "2024-03-12" || days[9].Day != "2024-03-03" {
		t.Fatalf("window = %s..%s", days[9].Day, days[0].Day)
	}
	if days[0].Issue != "" {
		t.Fatalf("canceled order must be ignored: %+v", days[0])
	}
	if days[1].Issue == "" {
		t.Fatalf("negative VAT on 2024-03-11 should be flagged: %+v", days[1])
	}

	zero := []models.Order{{PurchaseDate: day("2024-03-01"), Items: []models.OrderItem{{Quantity: 1, ItemTax: dec("2"), IsPriceNet: true}}}}
	if d := finance.VatByDay(zero, day("2024-03-02"), 10); d[0].Issue == "" || !d[0].Percent.IsZero() {
		t.Fatalf("VAT without revenue should be flagged without dividing by zero: %+v", d[0])
	}
}

func TestFeeTotals(t *testing.T) {
	window := finance.DateRange{From: day("2024-03-01"), To: utils.EndOfDay(day("2024-03-30"))}
	c := finance.FeeTotals([]models.FinancialEvent{
		feeEvent(1, "o-1", "SKU", "Commission", "-6.75"),
		feeEvent(2, "o-1", "SKU", "Mystery", "-1.25"),
	}, testFeeTable(), window)
	if !c.Passed || len(c.Warnings) != 0 {
		t.Fatalf("fee totals should pass without warnings: %+v", c)
	}
	if c.Details[0] != "other=1.25" || c.Details[1] != "referral=6.75" || c.Details[2] != "total=8.00" {
		t.Fatalf("details = %v", c.Details)
	}

	empty := finance.FeeTotals(nil, testFeeTable(), window)
	if !empty.Passed || len(empty.Warnings) != 1 {
		t.Fatalf("zero fees should pass with a warning: %+v", empty)
	}
}

func TestFeeTotalsWindow(t *testing.T) {
	asOf := time.Date(2024, 3, 31, 15, 4, 5, 0, time.UTC)
	window := finance.FeeTotalsWindow(asOf)
	if !window.From.Equal(day("2024-03-02")) || !window.To.Equal(utils.EndOfDay(day("2024-03-31"))) {
		t.Fatalf("window = %s .. %s", window.From, window.To)
	}
	cases := []struct {
		posted time.Time
		want   bool
	}{
		{day("2024-03-01").Add(23 * time.Hour), false},
		{day("2024-03-02"), true},
		{utils.EndOfDay(day("2024-03-31")), true},
		{day("2024-04-01"), false},
	}
	for _, c := range cases {
		if got := window.Contains(c.posted); got != c.want {
			t.Fatalf("Contains(%s) = %v, want %v", c.posted, got, c.want)
		}
	}

	days := 0
	for d := window.From; d.Before(window.To); d = d.AddDate(0, 0, 1) {
		days++
	}
	if days != finance.FeeTotalsWindowDays {
		t.Fatalf("window spans %d days, want %d", days, finance.FeeTotalsWindowDays)
	}
}

func TestCrossReference_OrphanFailsReport(t *testing.T) {
	orphan := feeEvent(9, "999-0000000-0000000", "SKU", "Commission", "-1.00")
	xref := finance.CrossReference(finance.CrossReferenceInput{
		OrdersWithoutEvents: []string{"111-1111111-1111111"},
		OrphanedEvents:      []models.FinancialEvent{orphan},
	})
	if xref.Passed {
		t.Fatalf("orphaned event should fail the check")
	}
	if xref.Counts["orphaned_events"] != 1 || xref.Counts["orders_without_events"] != 1 || xref.Counts["duplicate_external_ids"] != 0 {
		t.Fatalf("counts = %v", xref.Counts)
	}
	if len(xref.Warnings) != 1 {
		t.Fatalf("orders without events should only warn: %v", xref.Warnings)
	}

	report := finance.VerificationReport{Checks: []finance.CheckResult{
		finance.FeeTotals(nil, testFeeTable(), finance.DateRange{}),
		xref,
	}}
	report.Finalize()
	if report.Passed {
		t.Fatalf("report should fail when any check fails")
	}

	warnOnly := finance.CrossReference(finance.CrossReferenceInput{OrdersWithoutEvents: []string{"a"}})
	if !warnOnly.Passed {
		t.Fatalf("orders without events alone must not fail the check")
	}
}

func TestDuplicateExternalIds(t *testing.T) {
	a := feeEvent(1, "o", "s", "Commission", "-1")
	a.FinancialEventId = ptr("X-1")
	b := a
	b.ID = 2
	c := feeEvent(3, "o", "s", "Commission", "-1")
	got := finance.DuplicateExternalIds([]models.FinancialEvent{a, b, c})
	if len(got) != 1 || got[0].FinancialEventId != "X-1" || got[0].Count != 2 {
		t.Fatalf("duplicates = %+v", got)
	}
	if len(finance.DuplicateExternalIds([]models.FinancialEvent{a, c})) != 0 {
		t.Fatalf("unique ids should report nothing")
	}
}

func TestFailedCheckCarriesError(t *testing.T) {
	c := finance.FailedCheck(finance.CheckVatSanity, utils.ErrScanLimitExceeded)
	if c.Passed || c.Error == "" {
		t.Fatalf("failed check = %+v", c)
	}
}
