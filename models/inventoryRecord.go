package models

import "time"

// InventoryRecord is a per-day FBA inventory snapshot for a SKU.
type InventoryRecord struct {
	ID             int       `gorm:"primary_key" json:"id"`
	AccountId      string    `gorm:"size:64;not null;index:uniq_inventory_snapshot,unique,priority:1" json:"account_id"`
	Sku            string    `gorm:"size:100;not null;index:uniq_inventory_snapshot,unique,priority:2" json:"sku"`
	MarketplaceId  string    `gorm:"size:50;not null;index:uniq_inventory_snapshot,unique,priority:3" json:"marketplace_id"`
	SnapshotDate   time.Time `gorm:"not null;index:uniq_inventory_snapshot,unique,priority:4" json:"snapshot_date"`
	FulfillableQty int       `gorm:"default:0" json:"fulfillable_qty"`
	InboundQty     int       `gorm:"default:0" json:"inbound_qty"`
	ReservedQty    int       `gorm:"default:0" json:"reserved_qty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
