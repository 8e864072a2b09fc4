package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is one marketplace purchase.
// Unique: (account_id, amazon_order_id).
type Order struct {
	ID              int             `gorm:"primary_key" json:"id"`
	AccountId       string          `gorm:"size:64;not null;index:uniq_order,unique,priority:1;index:idx_order_purchase,priority:1" json:"account_id"`
	AmazonOrderId   string          `gorm:"size:50;not null;index:uniq_order,unique,priority:2" json:"amazon_order_id"`
	PurchaseDate    time.Time       `gorm:"not null;index:idx_order_purchase,priority:2" json:"purchase_date"`
	MarketplaceId   string          `gorm:"size:50;index" json:"marketplace_id"`
	Currency        string          `gorm:"size:3" json:"currency"`
	Status          OrderStatus     `gorm:"size:30;index" json:"status"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	IsBusinessOrder bool            `gorm:"default:false" json:"is_business_order"`
	ItemCount       int             `gorm:"default:0" json:"item_count"`
	Items           []OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem prices are per unit; ItemTax and ShippingTax are line totals.
type OrderItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	AccountId         string          `gorm:"size:64;not null;index" json:"account_id"`
	OrderId           int             `gorm:"index;not null" json:"order_id"`
	Sku               string          `gorm:"size:100;index" json:"sku"`
	Quantity          int             `gorm:"not null;default:0" json:"quantity"`
	ItemPrice         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"item_price"`
	ItemTax           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"item_tax"`
	ShippingPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipping_price"`
	ShippingTax       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipping_tax"`
	PromotionDiscount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"promotion_discount"`
	// IsPriceNet is set once ingestion has stored ItemPrice exclusive of VAT.
	IsPriceNet        bool            `gorm:"default:false" json:"is_price_net"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetOrderByAmazonId(ctx context.Context, db *gorm.DB, accountId string, amazonOrderId string) (*Order, error) {
	var order Order
	err := db.WithContext(ctx).Preload("Items").
		Where("account_id = ? AND amazon_order_id = ?", accountId, amazonOrderId).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListOrdersForPeriod returns orders (with items) purchased in [from, to].
// An empty marketplaceId matches every marketplace.
func ListOrdersForPeriod(ctx context.Context, db *gorm.DB, accountId string, from time.Time, to time.Time, marketplaceId string) ([]Order, error) {
	var orders []Order
	q := db.WithContext(ctx).Preload("Items").
		Where("account_id = ? AND purchase_date >= ? AND purchase_date <= ?", accountId, from.UTC(), to.UTC())
	if marketplaceId != "" {
		q = q.Where("marketplace_id = ?", marketplaceId)
	}
	if err := q.Order("purchase_date, id").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ScanOrders walks an account's orders (with items) in primary-key order, stopping with
// utils.ErrScanLimitExceeded once more than maxRows orders were read.
func ScanOrders(ctx context.Context, db *gorm.DB, accountId string, batchSize int, maxRows int, fn func([]Order) error, scopes ...func(*gorm.DB) *gorm.DB) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var (
		batch []Order
		seen  int
	)
	q := db.WithContext(ctx).Preload("Items").Where("account_id = ?", accountId).Scopes(scopes...)
	result := q.FindInBatches(&batch, batchSize, func(tx *gorm.DB, batchNo int) error {
		seen += len(batch)
		if maxRows > 0 && seen > maxRows {
			return fmt.Errorf("%w: more than %d orders for account %s", utils.ErrScanLimitExceeded, maxRows, accountId)
		}
		return fn(batch)
	})
	return result.Error
}

// ListOrdersBefore pages orders (with items) purchased on or before asOf, newest first.
func ListOrdersBefore(ctx context.Context, db *gorm.DB, accountId string, asOf time.Time, limit int, offset int) ([]Order, error) {
	var orders []Order
	err := db.WithContext(ctx).Preload("Items").
		Where("account_id = ? AND purchase_date <= ?", accountId, asOf.UTC()).
		Order("purchase_date DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	return orders, err
}

// ListOrderIdsWithoutEvents returns amazon order ids purchased since `since` that have
// no financial event at all.
func ListOrderIdsWithoutEvents(ctx context.Context, db *gorm.DB, accountId string, since time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Raw(`
SELECT o.amazon_order_id
FROM orders o
WHERE o.account_id = ?
  AND o.purchase_date >= ?
  AND NOT EXISTS (
    SELECT 1 FROM financial_events fe
    WHERE fe.account_id = o.account_id AND fe.amazon_order_id = o.amazon_order_id
  )
ORDER BY o.amazon_order_id`, accountId, since.UTC()).Scan(&ids).Error
	return ids, err
}
