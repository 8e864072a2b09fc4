package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is one SKU per account. Cost is the per-unit COGS.
type Product struct {
	ID        int             `gorm:"primary_key" json:"id"`
	AccountId string          `gorm:"size:64;not null;index:uniq_product_sku,unique,priority:1" json:"account_id"`
	Sku       string          `gorm:"size:100;not null;index:uniq_product_sku,unique,priority:2" json:"sku"`
	Asin      string          `gorm:"size:20" json:"asin"`
	Title     string          `gorm:"size:500" json:"title"`
	Cost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	Currency  string          `gorm:"size:3" json:"currency"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func ListProducts(ctx context.Context, db *gorm.DB, accountId string) ([]Product, error) {
	var products []Product
	err := db.WithContext(ctx).Where("account_id = ?", accountId).Order("sku").Find(&products).Error
	return products, err
}

// ListProductsBySku indexes an account's products by SKU.
func ListProductsBySku(ctx context.Context, db *gorm.DB, accountId string) (map[string]Product, error) {
	products, err := ListProducts(ctx, db, accountId)
	if err != nil {
		return nil, err
	}
	bySku := make(map[string]Product, len(products))
	for _, p := range products {
		bySku[p.Sku] = p
	}
	return bySku, nil
}

// ListOrderItemsBySku returns the account's sold items for sku together with their orders.
func ListOrderItemsBySku(ctx context.Context, db *gorm.DB, accountId string, sku string) ([]Order, error) {
	var orders []Order
	err := db.WithContext(ctx).
		Preload("Items", "sku = ?", sku).
		Where("account_id = ? AND status <> ?", accountId, OrderStatusCanceled).
		Where("id IN (?)", db.Model(&OrderItem{}).Select("order_id").Where("account_id = ? AND sku = ?", accountId, sku)).
		Order("id").
		Find(&orders).Error
	return orders, err
}
