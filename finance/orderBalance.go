package finance

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"github.com/shopspring/decimal"
)

type BalanceSection string

const (
	BalanceSectionRevenue BalanceSection = "Revenue"
	BalanceSectionFee     BalanceSection = "Fee"
	BalanceSectionRefund  BalanceSection = "Refund"
	BalanceSectionOther   BalanceSection = "Other"
	BalanceSectionPending BalanceSection = "Pending"
)

var sectionOrder = map[BalanceSection]int{
	BalanceSectionRevenue: 0,
	BalanceSectionFee:     1,
	BalanceSectionRefund:  2,
	BalanceSectionOther:   3,
	BalanceSectionPending: 4,
}

type BalanceLine struct {
	EventId     int              `json:"event_id"`
	ExternalId  string           `json:"external_id,omitempty"`
	EventType   models.EventType `json:"event_type"`
	FeeType     string           `json:"fee_type,omitempty"`
	Sku         string           `json:"sku,omitempty"`
	Description string           `json:"description,omitempty"`
	PostedDate  time.Time        `json:"posted_date"`
	Amount      decimal.Decimal  `json:"amount"`
	// Subtotal is the running net after this line; pending lines leave it unchanged.
	Subtotal    decimal.Decimal  `json:"subtotal"`
}

type BalanceGroup struct {
	Section  BalanceSection     `json:"section"`
	Category models.FeeCategory `json:"category,omitempty"`
	Lines    []BalanceLine      `json:"lines"`
	Total    decimal.Decimal    `json:"total"`
}

// OrderBalance reconstructs what the seller receives for one order.
// Net = TotalRevenue + TotalFees + TotalRefunds + TotalOther; fees and refunds are
// negative. Pending (deferred) amounts are listed but not part of Net.
type OrderBalance struct {
	AmazonOrderId string          `json:"amazon_order_id"`
	Groups        []BalanceGroup  `json:"groups"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	TotalRefunds  decimal.Decimal `json:"total_refunds"`
	TotalOther    decimal.Decimal `json:"total_other"`
	TotalPending  decimal.Decimal `json:"total_pending"`
	Net           decimal.Decimal `json:"net"`
	Events        int             `json:"events"`
}

func BuildOrderBalance(amazonOrderId string, events []models.FinancialEvent, table FeeCategoryTable) OrderBalance {
	b := OrderBalance{
		AmazonOrderId: amazonOrderId,
		Groups:        []BalanceGroup{},
		TotalRevenue:  decimal.Zero,
		TotalFees:     decimal.Zero,
		TotalRefunds:  decimal.Zero,
		TotalOther:    decimal.Zero,
		TotalPending:  decimal.Zero,
		Net:           decimal.Zero,
	}

	type groupKey struct {
		section  BalanceSection
		category models.FeeCategory
	}
	groups := map[groupKey]*BalanceGroup{}
	for _, e := range events {
		if e.OrderId() != amazonOrderId {
			continue
		}
		b.Events++
		section, amount := classifyBalanceLine(e)
		k := groupKey{section: section}
		if section == BalanceSectionFee {
			k.category = table.CategoryFor(e.FeeTypeValue())
		}
		g, ok := groups[k]
		if !ok {
			g = &BalanceGroup{Section: k.section, Category: k.category, Total: decimal.Zero}
			groups[k] = g
		}
		g.Lines = append(g.Lines, BalanceLine{
			EventId:     e.ID,
			ExternalId:  e.ExternalId(),
			EventType:   e.EventType,
			FeeType:     e.FeeTypeValue(),
			Sku:         e.SkuValue(),
			Description: e.Description,
			PostedDate:  e.PostedDate,
			Amount:      amount,
		})
		g.Total = g.Total.Add(amount)
	}

	for _, g := range groups {
		sort.Slice(g.Lines, func(i, j int) bool {
			if !g.Lines[i].PostedDate.Equal(g.Lines[j].PostedDate) {
				return g.Lines[i].PostedDate.Before(g.Lines[j].PostedDate)
			}
			return g.Lines[i].EventId < g.Lines[j].EventId
		})
		b.Groups = append(b.Groups, *g)
	}
	sort.Slice(b.Groups, func(i, j int) bool {
		if b.Groups[i].Section != b.Groups[j].Section {
			return sectionOrder[b.Groups[i].Section] < sectionOrder[b.Groups[j].Section]
		}
		return b.Groups[i].Category < b.Groups[j].Category
	})

	running := decimal.Zero
	for gi := range b.Groups {
		g := &b.Groups[gi]
		for li := range g.Lines {
			if g.Section != BalanceSectionPending {
				running = running.Add(g.Lines[li].Amount)
			}
			g.Lines[li].Subtotal = running
		}
		switch g.Section {
		case BalanceSectionRevenue:
			b.TotalRevenue = b.TotalRevenue.Add(g.Total)
		case BalanceSectionFee:
			b.TotalFees = b.TotalFees.Add(g.Total)
		case BalanceSectionRefund:
			b.TotalRefunds = b.TotalRefunds.Add(g.Total)
		case BalanceSectionOther:
			b.TotalOther = b.TotalOther.Add(g.Total)
		case BalanceSectionPending:
			b.TotalPending = b.TotalPending.Add(g.Total)
		}
	}
	b.Net = b.TotalRevenue.Add(b.TotalFees).Add(b.TotalRefunds).Add(b.TotalOther)
	return b
}

// classifyBalanceLine returns the section and signed amount. Fees and refunds are made
// negative regardless of how they were stored.
func classifyBalanceLine(e models.FinancialEvent) (BalanceSection, decimal.Decimal) {
	if isPending(e) {
		return BalanceSectionPending, e.Amount
	}
	switch {
	case e.EventType == models.EventTypeOrderRevenue:
		return BalanceSectionRevenue, e.Amount
	case e.EventType.IsFee():
		return BalanceSectionFee, e.Amount.Abs().Neg()
	case e.EventType == models.EventTypeRefund:
		return BalanceSectionRefund, e.Amount.Abs().Neg()
	}
	return BalanceSectionOther, e.Amount
}

// released DeferredTransaction rows are settled money
func isPending(e models.FinancialEvent) bool {
	if e.TransactionStatus == models.TransactionStatusDeferred {
		return true
	}
	return e.EventType == models.EventTypeDeferredTransaction && e.TransactionStatus != models.TransactionStatusReleased
}
