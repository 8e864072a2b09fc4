package finance

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
)

type dayMarketplace struct {
	day           string
	marketplaceId string
}

// BuildDailySummaries splits the input by UTC day and marketplace and summarizes each
// slice that has any activity between from and to. Rows are sorted by day, then marketplace.
func BuildDailySummaries(input SummaryInput, from time.Time, to time.Time) []models.DailySummary {
	accountId := input.Filter.AccountId
	window := DateRange{From: from, To: to}
	slices := map[dayMarketplace]*SummaryInput{}
	slice := func(t time.Time, marketplaceId string) *SummaryInput {
		k := dayMarketplace{day: t.UTC().Format(utils.DateLayout), marketplaceId: marketplaceId}
		s, ok := slices[k]
		if !ok {
			s = &SummaryInput{Products: input.Products, FeeCategories: input.FeeCategories}
			slices[k] = s
		}
		return s
	}

	for _, o := range input.Orders {
		if o.Status == models.OrderStatusCanceled || !window.Contains(o.PurchaseDate) {
			continue
		}
		s := slice(o.PurchaseDate, o.MarketplaceId)
		s.Orders = append(s.Orders, o)
	}
	for _, e := range input.Events {
		if !window.Contains(e.PostedDate) {
			continue
		}
		s := slice(e.PostedDate, e.MarketplaceId)
		s.Events = append(s.Events, e)
	}
	for _, m := range input.AdMetrics {
		if !window.Contains(m.Date) {
			continue
		}
		s := slice(m.Date, m.MarketplaceId)
		s.AdMetrics = append(s.AdMetrics, m)
	}

	keys := make([]dayMarketplace, 0, len(slices))
	for k := range slices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].marketplaceId < keys[j].marketplaceId
	})

	rows := make([]models.DailySummary, 0, len(keys))
	for _, k := range keys {
		day, _ := time.Parse(utils.DateLayout, k.day)
		in := slices[k]
		in.Filter = SummaryFilter{AccountId: accountId, Range: DateRange{From: day, To: utils.EndOfDay(day)}}
		s := Summarize(*in)
		rows = append(rows, models.DailySummary{
			AccountId:     accountId,
			MarketplaceId: k.marketplaceId,
			SummaryDate:   day,
			Revenue:       s.Revenue,
			Fees:          s.Fees,
			Refunds:       s.Refunds,
			Vat:           s.Vat,
			Cogs:          s.Cogs,
			Ads:           s.Ads,
			NetProfit:     s.NetProfit,
			Margin:        s.Margin,
			UnitsSold:     s.UnitsSold,
			Orders:        s.OrderCount,
		})
	}
	return rows
}
