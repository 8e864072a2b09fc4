package finance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/shopspring/decimal"
)

const (
	CheckDuplicateFees  = "duplicate_fees"
	CheckVatSanity      = "vat_sanity"
	CheckFeeTotals      = "fee_totals"
	CheckCrossReference = "cross_reference"
)

const (
	VatSanityDays       = 10
	FeeTotalsWindowDays = 30
	CrossReferenceDays  = 90
	maxDetailLines      = 50
)

// VatSanityMaxPercent is the highest plausible VAT share of net revenue for a day.
var VatSanityMaxPercent = decimal.NewFromInt(30)

type CheckResult struct {
	Name     string           `json:"name"`
	Passed   bool             `json:"passed"`
	Warnings []string         `json:"warnings"`
	Details  []string         `json:"details"`
	Counts   map[string]int64 `json:"counts"`
	Error    string           `json:"error,omitempty"`
}

func newCheck(name string) CheckResult {
	return CheckResult{Name: name, Passed: true, Warnings: []string{}, Details: []string{}, Counts: map[string]int64{}}
}

// FailedCheck is the result for a check whose data could not be loaded.
func FailedCheck(name string, err error) CheckResult {
	c := newCheck(name)
	c.Passed = false
	if err != nil {
		c.Error = err.Error()
	}
	return c
}

func (c *CheckResult) addDetail(format string, args ...any) {
	if len(c.Details) == maxDetailLines {
		c.Details = append(c.Details, "...")
		return
	}
	if len(c.Details) > maxDetailLines {
		return
	}
	c.Details = append(c.Details, fmt.Sprintf(format, args...))
}

type VerificationReport struct {
	AccountId     string        `json:"account_id"`
	AsOf          time.Time     `json:"as_of"`
	CorrelationId string        `json:"correlation_id,omitempty"`
	Passed        bool          `json:"passed"`
	Checks        []CheckResult `json:"checks"`
}

// Finalize sets Passed to the AND of every check.
func (r *VerificationReport) Finalize() {
	r.Passed = true
	for _, c := range r.Checks {
		if !c.Passed {
			r.Passed = false
		}
	}
}

// DuplicateFees groups order-linked Fee/ServiceFee events by (order, sku, fee type,
// event type) and fails on any group with more than one event.
func DuplicateFees(events []models.FinancialEvent) CheckResult {
	c := newCheck(CheckDuplicateFees)
	groups := map[DedupKey][]models.FinancialEvent{}
	for _, e := range events {
		if !e.EventType.IsFee() || e.OrderId() == "" {
			continue
		}
		k := KeyOf(e)
		k.AccountId = ""
		groups[k] = append(groups[k], e)
	}
	keys := make([]DedupKey, 0, len(groups))
	for k, g := range groups {
		if len(g) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var duplicateEvents int64
	for _, k := range keys {
		g := groups[k]
		sort.Slice(g, func(i, j int) bool { return g[i].ID < g[j].ID })
		amounts := make([]string, 0, len(g))
		for _, e := range g {
			amounts = append(amounts, e.Amount.StringFixed(2))
		}
		duplicateEvents += int64(len(g))
		c.addDetail("order=%s sku=%s fee_type=%s event_type=%s count=%d amounts=[%s]",
			k.AmazonOrderId, k.Sku, k.FeeType, k.EventType, len(g), strings.Join(amounts, " "))
	}
	c.Counts["duplicate_groups"] = int64(len(keys))
	c.Counts["duplicate_events"] = duplicateEvents
	c.Passed = len(keys) == 0
	return c
}

type DayVat struct {
	Day     string          `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
	Vat     decimal.Decimal `json:"vat"`
	Percent decimal.Decimal `json:"percent"`
	Issue   string          `json:"issue,omitempty"`
}

// VatByDay returns VAT against net revenue for the last `days` distinct purchase days
// (UTC) on or before asOf, newest first. Canceled orders are ignored.
func VatByDay(orders []models.Order, asOf time.Time, days int) []DayVat {
	byDay := map[string]*DayVat{}
	for _, o := range orders {
		if o.Status == models.OrderStatusCanceled || o.PurchaseDate.After(asOf) {
			continue
		}
		day := o.PurchaseDate.UTC().Format(utils.DateLayout)
		d, ok := byDay[day]
		if !ok {
			d = &DayVat{Day: day, Revenue: decimal.Zero, Vat: decimal.Zero}
			byDay[day] = d
		}
		for _, item := range o.Items {
			d.Revenue = d.Revenue.Add(NetLineAmount(o, item))
			d.Vat = d.Vat.Add(item.ItemTax).Add(item.ShippingTax)
		}
	}
	keys := make([]string, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if days > 0 && len(keys) > days {
		keys = keys[:days]
	}
	out := make([]DayVat, 0, len(keys))
	for _, k := range keys {
		d := *byDay[k]
		d.Percent = utils.PercentOf(d.Vat, d.Revenue)
		switch {
		case d.Vat.IsNegative():
			d.Issue = "negative VAT"
		case d.Revenue.IsZero() && !d.Vat.IsZero():
			d.Issue = "VAT without revenue"
		case d.Percent.IsNegative():
			d.Issue = "negative VAT ratio"
		case d.Percent.GreaterThan(VatSanityMaxPercent):
			d.Issue = fmt.Sprintf("VAT above %s%% of revenue", VatSanityMaxPercent.String())
		}
		out = append(out, d)
	}
	return out
}

// VatSanity flags days whose VAT ratio is negative or implausibly high.
func VatSanity(orders []models.Order, asOf time.Time) CheckResult {
	c := newCheck(CheckVatSanity)
	days := VatByDay(orders, asOf, VatSanityDays)
	var flagged int64
	for _, d := range days {
		if d.Issue != "" {
			flagged++
			c.addDetail("%s revenue=%s vat=%s (%s%%): %s", d.Day, d.Revenue.StringFixed(2), d.Vat.StringFixed(2), d.Percent.StringFixed(2), d.Issue)
		}
	}
	if len(days) == 0 {
		c.Warnings = append(c.Warnings, "no orders to check")
	}
	c.Counts["days_checked"] = int64(len(days))
	c.Counts["days_flagged"] = flagged
	c.Passed = flagged == 0
	return c
}

// FeeTotalsWindow covers the FeeTotalsWindowDays calendar days ending on asOf's day.
func FeeTotalsWindow(asOf time.Time) DateRange {
	start := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	return DateRange{From: start.AddDate(0, 0, -(FeeTotalsWindowDays - 1)), To: utils.EndOfDay(asOf)}
}

// FeeTotals reports fee magnitudes per category for events posted in window. It never
// fails; a zero total is a warning.
func FeeTotals(events []models.FinancialEvent, table FeeCategoryTable, window DateRange) CheckResult {
	c := newCheck(CheckFeeTotals)
	totals := map[models.FeeCategory]decimal.Decimal{}
	total := decimal.Zero
	var count int64
	for _, e := range events {
		if !e.EventType.IsFee() || !window.Contains(e.PostedDate) {
			continue
		}
		category := table.CategoryFor(e.FeeTypeValue())
		totals[category] = totals[category].Add(e.Amount.Abs())
		total = total.Add(e.Amount.Abs())
		count++
	}
	categories := make([]string, 0, len(totals))
	for k := range totals {
		categories = append(categories, string(k))
	}
	sort.Strings(categories)
	for _, k := range categories {
		c.addDetail("%s=%s", k, totals[models.FeeCategory(k)].StringFixed(2))
	}
	c.addDetail("total=%s", total.StringFixed(2))
	if total.IsZero() {
		c.Warnings = append(c.Warnings, fmt.Sprintf("no fees recorded between %s and %s",
			window.From.UTC().Format(utils.DateLayout), window.To.UTC().Format(utils.DateLayout)))
	}
	c.Counts["fee_events"] = count
	return c
}

type CrossReferenceInput struct {
	OrdersWithoutEvents  []string
	OrphanedEvents       []models.FinancialEvent
	DuplicateExternalIds []models.ExternalIdCount
}

// CrossReference fails on orphaned events or repeated external ids. Recent orders
// without events are only a warning (sync lag or a payout still deferred).
func CrossReference(in CrossReferenceInput) CheckResult {
	c := newCheck(CheckCrossReference)
	c.Counts["orders_without_events"] = int64(len(in.OrdersWithoutEvents))
	c.Counts["orphaned_events"] = int64(len(in.OrphanedEvents))
	c.Counts["duplicate_external_ids"] = int64(len(in.DuplicateExternalIds))

	if n := len(in.OrdersWithoutEvents); n > 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%d orders in the last %d days have no financial events", n, CrossReferenceDays))
	}
	for _, e := range in.OrphanedEvents {
		c.addDetail("orphaned event id=%d order=%s type=%s amount=%s", e.ID, e.OrderId(), e.EventType, e.Amount.StringFixed(2))
	}
	for _, d := range in.DuplicateExternalIds {
		c.addDetail("financial_event_id=%s stored %d times", d.FinancialEventId, d.Count)
	}
	c.Passed = len(in.OrphanedEvents) == 0 && len(in.DuplicateExternalIds) == 0
	return c
}

// DuplicateExternalIds counts external ids repeated within an account in memory.
func DuplicateExternalIds(events []models.FinancialEvent) []models.ExternalIdCount {
	counts := map[string]int64{}
	for _, e := range events {
		if id := e.ExternalId(); id != "" {
			counts[id]++
		}
	}
	var out []models.ExternalIdCount
	for id, n := range counts {
		if n > 1 {
			out = append(out, models.ExternalIdCount{FinancialEventId: id, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinancialEventId < out[j].FinancialEventId })
	return out
}
