package eventsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type MessageKind string

const (
	KindOrders          MessageKind = "orders"
	KindFinancialEvents MessageKind = "financial_events"
	KindAdMetrics       MessageKind = "ad_metrics"
	KindProducts        MessageKind = "products"
	KindInventory       MessageKind = "inventory"
)

// ErrMalformedMessage marks input that will never succeed; consumers drop it instead of
// requeueing.
var ErrMalformedMessage = errors.New("malformed ingest message")

// IngestMessage is one batch of SP-API records for an account.
type IngestMessage struct {
	MessageId string          `json:"message_id" validate:"required,max=191"`
	AccountId string          `json:"account_id" validate:"required,max=64"`
	Kind      MessageKind     `json:"kind" validate:"required,oneof=orders financial_events ad_metrics products inventory"`
	Records   json.RawMessage `json:"records" validate:"required"`
}

type OrderItemRecord struct {
	Sku               string          `json:"sku" validate:"required,max=100"`
	Quantity          int             `json:"quantity" validate:"gte=0"`
	ItemPrice         decimal.Decimal `json:"item_price"`
	ItemTax           decimal.Decimal `json:"item_tax"`
	ShippingPrice     decimal.Decimal `json:"shipping_price"`
	ShippingTax       decimal.Decimal `json:"shipping_tax"`
	PromotionDiscount decimal.Decimal `json:"promotion_discount"`
	IsPriceNet        bool            `json:"is_price_net"`
}

type OrderRecord struct {
	AmazonOrderId   string            `json:"amazon_order_id" validate:"required,max=50"`
	PurchaseDate    time.Time         `json:"purchase_date" validate:"required"`
	MarketplaceId   string            `json:"marketplace_id" validate:"max=50"`
	Currency        string            `json:"currency" validate:"omitempty,len=3"`
	Status          string            `json:"status" validate:"required,order_status"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	IsBusinessOrder bool              `json:"is_business_order"`
	Items           []OrderItemRecord `json:"items" validate:"dive"`
}

type FinancialEventRecord struct {
	FinancialEventId  string          `json:"financial_event_id" validate:"max=191"`
	EventType         string          `json:"event_type" validate:"required,event_type"`
	PostedDate        time.Time       `json:"posted_date" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency" validate:"omitempty,len=3"`
	MarketplaceId     string          `json:"marketplace_id" validate:"max=50"`
	AmazonOrderId     string          `json:"amazon_order_id" validate:"max=50"`
	Sku               string          `json:"sku" validate:"max=100"`
	FeeType           string          `json:"fee_type" validate:"max=100"`
	Description       string          `json:"description" validate:"max=255"`
	TransactionStatus string          `json:"transaction_status" validate:"omitempty,oneof=DEFERRED RELEASED"`
}

type AdMetricRecord struct {
	Date            time.Time       `json:"date" validate:"required"`
	MarketplaceId   string          `json:"marketplace_id" validate:"required,max=50"`
	CampaignId      string          `json:"campaign_id" validate:"required,max=100"`
	Sku             string          `json:"sku" validate:"max=100"`
	Spend           decimal.Decimal `json:"spend"`
	Impressions     int64           `json:"impressions" validate:"gte=0"`
	Clicks          int64           `json:"clicks" validate:"gte=0"`
	AttributedSales decimal.Decimal `json:"attributed_sales"`
}

type ProductRecord struct {
	Sku      string          `json:"sku" validate:"required,max=100"`
	Asin     string          `json:"asin" validate:"max=20"`
	Title    string          `json:"title" validate:"max=500"`
	Cost     decimal.Decimal `json:"cost"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
}

type InventoryRecordInput struct {
	Sku            string    `json:"sku" validate:"required,max=100"`
	MarketplaceId  string    `json:"marketplace_id" validate:"required,max=50"`
	SnapshotDate   time.Time `json:"snapshot_date" validate:"required"`
	FulfillableQty int       `json:"fulfillable_qty" validate:"gte=0"`
	InboundQty     int       `json:"inbound_qty" validate:"gte=0"`
	ReservedQty    int       `json:"reserved_qty" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return models.EventType(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
		return models.OrderStatus(fl.Field().String()).IsValid()
	})
	return v
}

// validationError flattens validator output into one readable error.
func validationError(err error) error {
	fields := utils.ProcessValidationErrors(err)
	if len(fields) == 0 {
		return err
	}
	parts := make([]string, 0, len(fields))
	for field, tag := range fields {
		parts = append(parts, field+":"+tag)
	}
	sort.Strings(parts)
	return fmt.Errorf("invalid record (%s)", strings.Join(parts, ", "))
}

func normalizeMarketplace(v string) string {
	if id, ok := utils.NormalizeMarketplaceID(v); ok {
		return id
	}
	return strings.TrimSpace(v)
}

func (r OrderRecord) toModel(accountId string) models.Order {
	o := models.Order{
		AccountId:       accountId,
		AmazonOrderId:   strings.TrimSpace(r.AmazonOrderId),
		PurchaseDate:    r.PurchaseDate.UTC(),
		MarketplaceId:   normalizeMarketplace(r.MarketplaceId),
		Currency:        strings.ToUpper(r.Currency),
		Status:          models.OrderStatus(r.Status),
		TotalAmount:     r.TotalAmount,
		IsBusinessOrder: r.IsBusinessOrder,
		ItemCount:       len(r.Items),
	}
	for _, it := range r.Items {
		o.Items = append(o.Items, models.OrderItem{
			AccountId:         accountId,
			Sku:               strings.TrimSpace(it.Sku),
			Quantity:          it.Quantity,
			ItemPrice:         it.ItemPrice,
			ItemTax:           it.ItemTax,
			ShippingPrice:     it.ShippingPrice,
			ShippingTax:       it.ShippingTax,
			PromotionDiscount: it.PromotionDiscount,
			IsPriceNet:        it.IsPriceNet,
		})
	}
	return o
}

func (r FinancialEventRecord) toModel(accountId string) models.FinancialEvent {
	e := models.FinancialEvent{
		AccountId:         accountId,
		FinancialEventId:  utils.NilIfEmpty(strings.TrimSpace(r.FinancialEventId)),
		EventType:         models.EventType(r.EventType),
		PostedDate:        r.PostedDate.UTC(),
		Amount:            r.Amount,
		Currency:          strings.ToUpper(r.Currency),
		MarketplaceId:     normalizeMarketplace(r.MarketplaceId),
		AmazonOrderId:     utils.NilIfEmpty(strings.TrimSpace(r.AmazonOrderId)),
		Sku:               utils.NilIfEmpty(strings.TrimSpace(r.Sku)),
		FeeType:           utils.NilIfEmpty(strings.TrimSpace(r.FeeType)),
		Description:       r.Description,
		TransactionStatus: models.TransactionStatus(r.TransactionStatus),
	}
	e.SourceGeneration = ClassifyGeneration(e)
	return e
}

func (r AdMetricRecord) toModel(accountId string) models.AdMetric {
	return models.AdMetric{
		AccountId:       accountId,
		Date:            r.Date.UTC(),
		MarketplaceId:   normalizeMarketplace(r.MarketplaceId),
		CampaignId:      strings.TrimSpace(r.CampaignId),
		Sku:             strings.TrimSpace(r.Sku),
		Spend:           r.Spend,
		Impressions:     r.Impressions,
		Clicks:          r.Clicks,
		AttributedSales: r.AttributedSales,
	}
}

func (r ProductRecord) toModel(accountId string) models.Product {
	return models.Product{
		AccountId: accountId,
		Sku:       strings.TrimSpace(r.Sku),
		Asin:      r.Asin,
		Title:     r.Title,
		Cost:      r.Cost,
		Price:     r.Price,
		Currency:  strings.ToUpper(r.Currency),
	}
}

func (r InventoryRecordInput) toModel(accountId string) models.InventoryRecord {
	return models.InventoryRecord{
		AccountId:      accountId,
		Sku:            strings.TrimSpace(r.Sku),
		MarketplaceId:  normalizeMarketplace(r.MarketplaceId),
		SnapshotDate:   r.SnapshotDate.UTC(),
		FulfillableQty: r.FulfillableQty,
		InboundQty:     r.InboundQty,
		ReservedQty:    r.ReservedQty,
	}
}
