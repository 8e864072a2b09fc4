package finance

import (
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"github.com/shopspring/decimal"
)

// OrderTotalEpsilon is the tolerance between a stored order total and its items.
var OrderTotalEpsilon = decimal.NewFromFloat(0.01)

// NetUnitPrice returns the VAT-exclusive unit price of an item.
//
// Items already stored net, and items of business (B2B, reverse charge) orders, use
// ItemPrice unchanged. Raw B2C items subtract their share of ItemTax, which is a line
// total.
func NetUnitPrice(order models.Order, item models.OrderItem) decimal.Decimal {
	if item.IsPriceNet || order.IsBusinessOrder {
		return item.ItemPrice
	}
	if item.Quantity <= 0 {
		return item.ItemPrice.Sub(item.ItemTax).Round(4)
	}
	return item.ItemPrice.Sub(item.ItemTax.Div(decimal.NewFromInt(int64(item.Quantity)))).Round(4)
}

// NetLineAmount is NetUnitPrice times quantity.
func NetLineAmount(order models.Order, item models.OrderItem) decimal.Decimal {
	return NetUnitPrice(order, item).Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// ItemsSubtotal sums item price * quantity.
func ItemsSubtotal(order models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, item := range order.Items {
		total = total.Add(item.ItemPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ExpectedOrderTotal sums item price * quantity + shipping - promotion over the items.
func ExpectedOrderTotal(order models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, item := range order.Items {
		line := item.ItemPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line).Add(item.ShippingPrice).Sub(item.PromotionDiscount)
	}
	return total
}

// OrderTotalConsistent reports whether the stored total matches the items within epsilon.
func OrderTotalConsistent(order models.Order) bool {
	return order.TotalAmount.Sub(ExpectedOrderTotal(order)).Abs().LessThanOrEqual(OrderTotalEpsilon)
}

// EffectiveOrderTotal is the total used for order-derived figures. Amazon leaves the
// stored total at zero or provisional until pricing is final, so zero totals and
// Pending/Unshipped orders are recomputed from item prices. A stored total that
// contradicts its items is replaced by ExpectedOrderTotal until the order total backfill
// repairs it. Canceled orders keep the stored value.
func EffectiveOrderTotal(order models.Order) decimal.Decimal {
	if order.Status == models.OrderStatusCanceled {
		return order.TotalAmount
	}
	if order.TotalAmount.IsZero() || order.Status.IsProvisional() {
		return ItemsSubtotal(order)
	}
	if len(order.Items) > 0 && !OrderTotalConsistent(order) {
		return ExpectedOrderTotal(order)
	}
	return order.TotalAmount
}

// HasRecomputedTotal reports whether EffectiveOrderTotal ignores the stored column.
func HasRecomputedTotal(order models.Order) bool {
	if order.Status == models.OrderStatusCanceled {
		return false
	}
	if order.TotalAmount.IsZero() || order.Status.IsProvisional() {
		return true
	}
	return len(order.Items) > 0 && !OrderTotalConsistent(order)
}
