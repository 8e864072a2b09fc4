package finance_test

import (
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"github.com/shopspring/decimal"
)

const testAccount = "acct-1"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(s string) *string {
	return &s
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func feeEvent(id int, order string, sku string, feeType string, amount string) models.FinancialEvent {
	return models.FinancialEvent{
		ID:            id,
		AccountId:     testAccount,
		EventType:     models.EventTypeFee,
		PostedDate:    day("2024-03-10"),
		Amount:        dec(amount),
		MarketplaceId: "A1PA6795UKMFR9",
		AmazonOrderId: ptr(order),
		Sku:           ptr(sku),
		FeeType:       ptr(feeType),
	}
}
