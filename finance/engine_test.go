package finance_test

import (
	"encoding/json"
	"testing"

	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/shopspring/decimal"
)

func march() finance.DateRange {
	return finance.DateRange{From: day("2024-03-01"), To: utils.EndOfDay(day("2024-03-31"))}
}

func testFeeTable() finance.FeeCategoryTable {
	return finance.NewFeeCategoryTable(models.DefaultFeeCategoryMappings())
}

func TestSummarize_SingleOrderRevenueAndFees(t *testing.T) {
	order := "306-9581646-5675560"
	revenue := models.FinancialEvent{
		ID: 1, AccountId: testAccount, EventType: models.EventTypeOrderRevenue,
		PostedDate: day("2024-03-05"), Amount: dec("45.00"), AmazonOrderId: ptr(order),
	}
	commission := feeEvent(2, order, "SKU-1", "Commission", "-6.75")
	fulfillment := feeEvent(3, order, "SKU-1", "FBAPerUnitFulfillmentFee", "-2.10")

	s := finance.Summarize(finance.SummaryInput{
		Filter:        finance.SummaryFilter{AccountId: testAccount, Range: march()},
		Events:        []models.FinancialEvent{revenue, commission, fulfillment},
		FeeCategories: testFeeTable(),
	})

	if !s.Revenue.Equal(dec("45.00")) {
		t.Fatalf("revenue = %s, want 45.00", s.Revenue)
	}
	if !s.Fees.Equal(dec("8.85")) {
		t.Fatalf("fees = %s, want 8.85", s.Fees)
	}
	if !s.NetProfit.Equal(dec("36.15")) {
		t.Fatalf("net profit = %s, want 36.15", s.NetProfit)
	}
	if len(s.FeeBreakdown) != 2 {
		t.Fatalf("fee breakdown = %+v, want 2 categories", s.FeeBreakdown)
	}
	if s.FeeBreakdown[0].Category != models.FeeCategoryFbaFulfillment || !s.FeeBreakdown[0].Amount.Equal(dec("2.10")) {
		t.Fatalf("first category = %+v", s.FeeBreakdown[0])
	}
	if s.FeeBreakdown[1].Category != models.FeeCategoryReferral || !s.FeeBreakdown[1].Amount.Equal(dec("6.75")) {
		t.Fatalf("second category = %+v", s.FeeBreakdown[1])
	}
}

func TestSummarize_FullFormula(t *testing.T) {
	orders := []models.Order{
		{
			ID: 1, AccountId: testAccount, AmazonOrderId: "o-1", PurchaseDate: day("2024-03-02"),
			MarketplaceId: "A1PA6795UKMFR9", Status: models.OrderStatusShipped, TotalAmount: dec("24.00"),
			Items: []models.OrderItem{
				{Sku: "SKU-1", Quantity: 2, ItemPrice: dec("10.00"), ItemTax: dec("3.80"), ShippingPrice: dec("4.00"), ShippingTax: dec("0.76")},
			},
		},
		{
			ID: 2, AccountId: testAccount, AmazonOrderId: "o-2", PurchaseDate: day("2024-03-03"),
			Status: models.OrderStatusCanceled, TotalAmount: dec("99.00"),
			Items: []models.OrderItem{{Sku: "SKU-1", Quantity: 5, ItemPrice: dec("10.00"), ItemTax: dec("9.50")}},
		},
		{
			// purchased before the range: its VAT is excluded even if events post in range
			ID: 3, AccountId: testAccount, AmazonOrderId: "o-3", PurchaseDate: day("2024-02-28"),
			Status: models.OrderStatusShipped, TotalAmount: dec("10.00"),
			Items: []models.OrderItem{{Sku: "SKU-2", Quantity: 1, ItemPrice: dec("10.00"), ItemTax: dec("1.90")}},
		},
	}
	events := []models.FinancialEvent{
		{ID: 1, AccountId: testAccount, EventType: models.EventTypeOrderRevenue, PostedDate: day("2024-03-04"), Amount: dec("100.00")},
		{ID: 2, AccountId: testAccount, EventType: models.EventTypeServiceFee, PostedDate: day("2024-03-04"), Amount: dec("-5.00"), FeeType: ptr("UnmappedThing")},
		{ID: 3, AccountId: testAccount, EventType: models.EventTypeRefund, PostedDate: day("2024-03-06"), Amount: dec("-10.00")},
		{ID: 4, AccountId: testAccount, EventType: models.EventTypeOrderRevenue, PostedDate: day("2024-04-01"), Amount: dec("500.00")},
		{ID: 5, AccountId: "other", EventType: models.EventTypeOrderRevenue, PostedDate: day("2024-03-04"), Amount: dec("700.00")},
	}
	ads := []models.AdMetric{
		{AccountId: testAccount, Date: day("2024-03-02"), CampaignId: "c1", Spend: dec("7.00")},
		{AccountId: testAccount, Date: day("2024-04-02"), CampaignId: "c1", Spend: dec("70.00")},
	}
	products := map[string]models.Product{"SKU-1": {Sku: "SKU-1", Cost: dec("3.00")}}

	s := finance.Summarize(finance.SummaryInput{
		Filter:        finance.SummaryFilter{AccountId: testAccount, Range: march()},
		Orders:        orders,
		Events:        events,
		AdMetrics:     ads,
		Products:      products,
		FeeCategories: testFeeTable(),
	})

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"revenue", s.Revenue, "100"},
		{"fees", s.Fees, "5"},
		{"refunds", s.Refunds, "10"},
		{"vat", s.Vat, "4.56"},
		{"cogs", s.Cogs, "6"},
		{"ads", s.Ads, "7"},
		{"shipping", s.ShippingCosts, "4"},
		{"net profit", s.NetProfit, "67.44"},
		{"margin", s.Margin, "67.44"},
		{"order totals", s.OrderTotals, "24"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Fatalf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if s.UnitsSold != 2 || s.OrderCount != 1 {
		t.Fatalf("units=%d orders=%d, want 2 and 1", s.UnitsSold, s.OrderCount)
	}
	if len(s.FeeBreakdown) != 1 || s.FeeBreakdown[0].Category != models.FeeCategoryOther {
		t.Fatalf("unmapped fee should fall back to other: %+v", s.FeeBreakdown)
	}
}

func TestSummarize_SkuAndMarketplaceFilters(t *testing.T) {
	orders := []models.Order{{
		ID: 1, AccountId: testAccount, PurchaseDate: day("2024-03-02"), MarketplaceId: "M1",
		Status: models.OrderStatusShipped, TotalAmount: dec("30"),
		Items: []models.OrderItem{
			{Sku: "SKU-1", Quantity: 1, ItemPrice: dec("10"), ItemTax: dec("1")},
			{Sku: "SKU-2", Quantity: 2, ItemPrice: dec("10"), ItemTax: dec("2")},
		},
	}}
	events := []models.FinancialEvent{
		{ID: 1, AccountId: testAccount, EventType: models.EventTypeOrderRevenue, PostedDate: day("2024-03-02"), Amount: dec("10"), Sku: ptr("SKU-1"), MarketplaceId: "M1"},
		{ID: 2, AccountId: testAccount, EventType: models.EventTypeOrderRevenue, PostedDate: day("2024-03-02"), Amount: dec("20"), Sku: ptr("SKU-2"), MarketplaceId: "M1"},
		{ID: 3, AccountId: testAccount, EventType: models.EventTypeOrderRevenue, PostedDate: day("2024-03-02"), Amount: dec("40"), Sku: ptr("SKU-2"), MarketplaceId: "M2"},
	}
	ads := []models.AdMetric{
		{AccountId: testAccount, Date: day("2024-03-02"), MarketplaceId: "M1", CampaignId: "c", Spend: dec("5")},
		{AccountId: testAccount, Date: day("2024-03-02"), MarketplaceId: "M1", CampaignId: "c", Sku: "SKU-2", Spend: dec("1.5")},
	}

	s := finance.Summarize(finance.SummaryInput{
		Filter:    finance.SummaryFilter{AccountId: testAccount, Range: march(), MarketplaceId: "M1", Sku: "SKU-2"},
		Orders:    orders,
		Events:    events,
		AdMetrics: ads,
	})
	if !s.Revenue.Equal(dec("20")) || !s.Vat.Equal(dec("2")) || !s.Ads.Equal(dec("1.5")) {
		t.Fatalf("revenue=%s vat=%s ads=%s, want 20, 2, 1.5", s.Revenue, s.Vat, s.Ads)
	}
	if s.UnitsSold != 2 || s.ItemsMissingCost != 1 || !s.OrderTotals.Equal(dec("20")) {
		t.Fatalf("units=%d missing=%d totals=%s", s.UnitsSold, s.ItemsMissingCost, s.OrderTotals)
	}
}

func TestSummarize_ZeroRevenueMargin(t *testing.T) {
	s := finance.Summarize(finance.SummaryInput{
		Filter: finance.SummaryFilter{AccountId: testAccount, Range: march()},
		Events: []models.FinancialEvent{feeEvent(1, "o-1", "SKU", "Commission", "-3")},
	})
	if !s.Margin.IsZero() {
		t.Fatalf("margin = %s, want 0", s.Margin)
	}
	if !s.NetProfit.Equal(dec("-3")) {
		t.Fatalf("net profit = %s, want -3", s.NetProfit)
	}
	if !finance.Margin(dec("10"), decimal.Zero).IsZero() {
		t.Fatalf("margin with zero revenue must be 0")
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	input := finance.SummaryInput{
		Filter: finance.SummaryFilter{AccountId: testAccount, Range: march()},
		Events: []models.FinancialEvent{
			feeEvent(1, "o-1", "SKU", "Commission", "-3"),
			feeEvent(2, "o-1", "SKU", "FBAStorageFee", "-1"),
			feeEvent(3, "o-1", "SKU", "Subscription", "-39"),
			feeEvent(4, "o-1", "SKU", "Whatever", "-2"),
		},
		FeeCategories: testFeeTable(),
	}
	first, err := json.Marshal(finance.Summarize(input))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(finance.Summarize(input))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("summary output changed between runs:\n%s\n%s", first, again)
		}
	}
}

func TestNetUnitPrice_BusinessVsConsumer(t *testing.T) {
	item := models.OrderItem{Sku: "SKU", Quantity: 2, ItemPrice: dec("11.90"), ItemTax: dec("3.80")}
	b2c := models.Order{IsBusinessOrder: false, Items: []models.OrderItem{item}}
	b2b := models.Order{IsBusinessOrder: true, Items: []models.OrderItem{item}}

	if got := finance.NetUnitPrice(b2c, item); !got.Equal(dec("10.00")) {
		t.Fatalf("b2c net unit price = %s, want 10.00", got)
	}
	if got := finance.NetUnitPrice(b2b, item); !got.Equal(dec("11.90")) {
		t.Fatalf("b2b net unit price = %s, want 11.90", got)
	}

	stored := item
	stored.IsPriceNet = true
	if got := finance.NetUnitPrice(b2c, stored); !got.Equal(dec("11.90")) {
		t.Fatalf("already-net item = %s, want 11.90", got)
	}
}

func TestEffectiveOrderTotal(t *testing.T) {
	items := []models.OrderItem{
		{Quantity: 2, ItemPrice: dec("20.00")},
		{Quantity: 1, ItemPrice: dec("18.40")},
	}
	cases := []struct {
		name   string
		status models.OrderStatus
		total  string
		want   string
	}{
		{"pending zero total", models.OrderStatusPending, "0", "58.40"},
		{"unshipped stale total", models.OrderStatusUnshipped, "12.00", "58.40"},
		{"shipped zero total", models.OrderStatusShipped, "0", "58.40"},
		{"shipped stored total within epsilon", models.OrderStatusShipped, "58.41", "58.41"},
		{"shipped total contradicting items", models.OrderStatusShipped, "10.00", "58.40"},
		{"canceled", models.OrderStatusCanceled, "0", "0"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			o := models.Order{Status: c.status, TotalAmount: dec(c.total), Items: items}
			if got := finance.EffectiveOrderTotal(o); !got.Equal(dec(c.want)) {
				t.Fatalf("effective total = %s, want %s", got, c.want)
			}
		})
	}
}

func TestSummarize_PendingOrderUsesItemTotal(t *testing.T) {
	o := models.Order{
		ID: 1, AccountId: testAccount, PurchaseDate: day("2024-03-09"), Status: models.OrderStatusPending,
		TotalAmount: decimal.Zero,
		Items:       []models.OrderItem{{Sku: "SKU", Quantity: 2, ItemPrice: dec("29.20")}},
	}
	s := finance.Summarize(finance.SummaryInput{
		Filter: finance.SummaryFilter{AccountId: testAccount, Range: march()},
		Orders: []models.Order{o},
	})
	if !s.OrderTotals.Equal(dec("58.40")) {
		t.Fatalf("order totals = %s, want 58.40", s.OrderTotals)
	}
}

func TestSummarize_StaleShippedTotalIsRecomputed(t *testing.T) {
	o := models.Order{
		ID: 1, AccountId: testAccount, PurchaseDate: day("2024-03-09"), Status: models.OrderStatusShipped,
		TotalAmount: dec("10.00"),
		Items: []models.OrderItem{
			{Sku: "SKU", Quantity: 2, ItemPrice: dec("29.20"), ShippingPrice: dec("3.00"), PromotionDiscount: dec("1.00")},
		},
	}
	if finance.OrderTotalConsistent(o) || !finance.HasRecomputedTotal(o) {
		t.Fatalf("stored total 10.00 should be treated as stale")
	}
	s := finance.Summarize(finance.SummaryInput{
		Filter: finance.SummaryFilter{AccountId: testAccount, Range: march()},
		Orders: []models.Order{o},
	})
	if !s.OrderTotals.Equal(dec("60.40")) {
		t.Fatalf("order totals = %s, want 60.40", s.OrderTotals)
	}
}

func TestOrderTotalConsistent(t *testing.T) {
	o := models.Order{
		TotalAmount: dec("24.99"),
		Items: []models.OrderItem{
			{Quantity: 2, ItemPrice: dec("10.00"), ShippingPrice: dec("5.00"), PromotionDiscount: dec("0.005")},
		},
	}
	if !finance.OrderTotalConsistent(o) {
		t.Fatalf("expected total within epsilon of %s", finance.ExpectedOrderTotal(o))
	}
	o.TotalAmount = dec("21.00")
	if finance.OrderTotalConsistent(o) {
		t.Fatalf("expected inconsistent total")
	}
}

func TestDateRangeInclusive(t *testing.T) {
	r := finance.DateRange{From: day("2024-03-01"), To: day("2024-03-02")}
	if !r.Contains(day("2024-03-01")) || !r.Contains(day("2024-03-02")) {
		t.Fatalf("range bounds must be inclusive")
	}
	if r.Contains(day("2024-03-03")) {
		t.Fatalf("outside range")
	}
}
