package finance

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/shopspring/decimal"
)

// DateRange is inclusive on both ends.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

type SummaryFilter struct {
	AccountId     string    `json:"account_id"`
	Range         DateRange `json:"range"`
	MarketplaceId string    `json:"marketplace_id,omitempty"`
	Sku           string    `json:"sku,omitempty"`
}

type SummaryInput struct {
	Filter        SummaryFilter
	Orders        []models.Order
	Events        []models.FinancialEvent
	AdMetrics     []models.AdMetric
	Products      map[string]models.Product
	FeeCategories FeeCategoryTable
}

type FeeCategoryTotal struct {
	Category models.FeeCategory `json:"category"`
	Amount   decimal.Decimal    `json:"amount"`
	Events   int                `json:"events"`
}

// Summary is the flat aggregate for one filter. Fees, refunds, vat, cogs and ads are
// positive magnitudes.
type Summary struct {
	Filter           SummaryFilter      `json:"filter"`
	Revenue          decimal.Decimal    `json:"revenue"`
	Fees             decimal.Decimal    `json:"fees"`
	Refunds          decimal.Decimal    `json:"refunds"`
	Vat              decimal.Decimal    `json:"vat"`
	Cogs             decimal.Decimal    `json:"cogs"`
	Ads              decimal.Decimal    `json:"ads"`
	NetProfit        decimal.Decimal    `json:"net_profit"`
	Margin           decimal.Decimal    `json:"margin"`
	UnitsSold        int                `json:"units_sold"`
	ShippingCosts    decimal.Decimal    `json:"shipping_costs"`
	OrderCount       int                `json:"order_count"`
	OrderTotals      decimal.Decimal    `json:"order_totals"`
	ItemsMissingCost int                `json:"items_missing_cost"`
	FeeBreakdown     []FeeCategoryTotal `json:"fee_breakdown"`
}

// Summarize aggregates the input for its filter.
//
// Revenue, fees and refunds come from financial events by posted date. VAT, COGS,
// units and shipping come from order items by the order's purchase date, so the two
// halves of a period do not strictly reconcile.
func Summarize(input SummaryInput) Summary {
	f := input.Filter
	s := Summary{
		Filter:        f,
		Revenue:       decimal.Zero,
		Fees:          decimal.Zero,
		Refunds:       decimal.Zero,
		Vat:           decimal.Zero,
		Cogs:          decimal.Zero,
		Ads:           decimal.Zero,
		ShippingCosts: decimal.Zero,
		OrderTotals:   decimal.Zero,
		FeeBreakdown:  []FeeCategoryTotal{},
	}

	breakdown := map[models.FeeCategory]*FeeCategoryTotal{}
	for _, e := range input.Events {
		if !eventMatches(f, e) {
			continue
		}
		switch {
		case e.EventType == models.EventTypeOrderRevenue:
			s.Revenue = s.Revenue.Add(e.Amount)
		case e.EventType.IsFee():
			amount := e.Amount.Abs()
			s.Fees = s.Fees.Add(amount)
			category := input.FeeCategories.CategoryFor(e.FeeTypeValue())
			t, ok := breakdown[category]
			if !ok {
				t = &FeeCategoryTotal{Category: category, Amount: decimal.Zero}
				breakdown[category] = t
			}
			t.Amount = t.Amount.Add(amount)
			t.Events++
		case e.EventType == models.EventTypeRefund:
			s.Refunds = s.Refunds.Add(e.Amount.Abs())
		}
	}
	for _, t := range breakdown {
		s.FeeBreakdown = append(s.FeeBreakdown, *t)
	}
	sort.Slice(s.FeeBreakdown, func(i, j int) bool { return s.FeeBreakdown[i].Category < s.FeeBreakdown[j].Category })

	for _, order := range input.Orders {
		if !orderMatches(f, order) {
			continue
		}
		matchedItems := 0
		for _, item := range order.Items {
			if f.Sku != "" && item.Sku != f.Sku {
				continue
			}
			matchedItems++
			qty := decimal.NewFromInt(int64(item.Quantity))
			s.Vat = s.Vat.Add(item.ItemTax).Add(item.ShippingTax)
			s.UnitsSold += item.Quantity
			s.ShippingCosts = s.ShippingCosts.Add(item.ShippingPrice)
			product, ok := input.Products[item.Sku]
			if !ok || product.Cost.IsZero() {
				s.ItemsMissingCost++
			}
			if ok {
				s.Cogs = s.Cogs.Add(product.Cost.Mul(qty))
			}
			if f.Sku != "" {
				s.OrderTotals = s.OrderTotals.Add(item.ItemPrice.Mul(qty))
			}
		}
		if f.Sku != "" && matchedItems == 0 {
			continue
		}
		s.OrderCount++
		if f.Sku == "" {
			s.OrderTotals = s.OrderTotals.Add(EffectiveOrderTotal(order))
		}
	}

	for _, m := range input.AdMetrics {
		if !adMetricMatches(f, m) {
			continue
		}
		s.Ads = s.Ads.Add(m.Spend)
	}

	s.NetProfit = NetProfit(s.Revenue, s.Fees, s.Refunds, s.Cogs, s.Ads, s.Vat)
	s.Margin = Margin(s.NetProfit, s.Revenue)
	return s
}

// NetProfit = revenue - fees - refunds - cogs - ads - vat.
func NetProfit(revenue, fees, refunds, cogs, ads, vat decimal.Decimal) decimal.Decimal {
	return revenue.Sub(fees).Sub(refunds).Sub(cogs).Sub(ads).Sub(vat)
}

// Margin is netProfit / revenue * 100 rounded to 2 places, 0 when revenue is 0.
func Margin(netProfit decimal.Decimal, revenue decimal.Decimal) decimal.Decimal {
	return utils.PercentOf(netProfit, revenue)
}

func eventMatches(f SummaryFilter, e models.FinancialEvent) bool {
	if f.AccountId != "" && e.AccountId != f.AccountId {
		return false
	}
	if !f.Range.Contains(e.PostedDate) {
		return false
	}
	if f.MarketplaceId != "" && e.MarketplaceId != f.MarketplaceId {
		return false
	}
	if f.Sku != "" && e.SkuValue() != f.Sku {
		return false
	}
	return true
}

func orderMatches(f SummaryFilter, o models.Order) bool {
	if f.AccountId != "" && o.AccountId != f.AccountId {
		return false
	}
	if o.Status == models.OrderStatusCanceled {
		return false
	}
	if !f.Range.Contains(o.PurchaseDate) {
		return false
	}
	if f.MarketplaceId != "" && o.MarketplaceId != f.MarketplaceId {
		return false
	}
	return true
}

// campaign-level rows (no SKU) cannot be attributed when filtering by SKU
func adMetricMatches(f SummaryFilter, m models.AdMetric) bool {
	if f.AccountId != "" && m.AccountId != f.AccountId {
		return false
	}
	if !f.Range.Contains(m.Date) {
		return false
	}
	if f.MarketplaceId != "" && m.MarketplaceId != f.MarketplaceId {
		return false
	}
	if f.Sku != "" && m.Sku != f.Sku {
		return false
	}
	return true
}
