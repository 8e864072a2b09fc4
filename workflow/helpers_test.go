package workflow_test

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	testAccount = "acct-1"
	marketDE    = "A1PA6795UKMFR9"
)

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

func seed(t *testing.T, db *gorm.DB, rows ...any) {
	t.Helper()
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed %T: %v", r, err)
		}
	}
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	n, err := models.CountFinancialEvents(context.Background(), db, testAccount)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func order(amazonOrderId string, purchased time.Time, status models.OrderStatus, total string, items ...models.OrderItem) *models.Order {
	for i := range items {
		items[i].AccountId = testAccount
	}
	return &models.Order{
		AccountId:     testAccount,
		AmazonOrderId: amazonOrderId,
		PurchaseDate:  purchased,
		MarketplaceId: marketDE,
		Currency:      "EUR",
		Status:        status,
		TotalAmount:   dec(total),
		ItemCount:     len(items),
		Items:         items,
	}
}

func item(sku string, qty int, price string, tax string) models.OrderItem {
	return models.OrderItem{Sku: sku, Quantity: qty, ItemPrice: dec(price), ItemTax: dec(tax)}
}

func event(eventType models.EventType, orderId string, sku string, feeType string, posted time.Time, amount string) *models.FinancialEvent {
	e := &models.FinancialEvent{
		AccountId:        testAccount,
		EventType:        eventType,
		PostedDate:       posted,
		Amount:           dec(amount),
		Currency:         "EUR",
		MarketplaceId:    marketDE,
		SourceGeneration: models.SourceGenerationUnknown,
	}
	if orderId != "" {
		e.AmazonOrderId = ptr(orderId)
	}
	if sku != "" {
		e.Sku = ptr(sku)
	}
	if feeType != "" {
		e.FeeType = ptr(feeType)
	}
	return e
}
