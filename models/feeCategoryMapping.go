package models

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeeCategoryMapping maps a raw SP-API fee type to a display category.
// It is reference data shared by all accounts.
type FeeCategoryMapping struct {
	ID          int         `gorm:"primary_key" json:"id"`
	FeeType     string      `gorm:"size:100;not null;uniqueIndex" json:"fee_type"`
	Category    FeeCategory `gorm:"size:30;not null" json:"category"`
	Description string      `gorm:"size:255" json:"description"`
}

func ListFeeCategoryMappings(ctx context.Context, db *gorm.DB) ([]FeeCategoryMapping, error) {
	var mappings []FeeCategoryMapping
	err := db.WithContext(ctx).Order("fee_type").Find(&mappings).Error
	return mappings, err
}

// UpsertFeeCategoryMappings inserts mappings, updating category and description of
// fee types that already exist.
func UpsertFeeCategoryMappings(ctx context.Context, db *gorm.DB, mappings []FeeCategoryMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fee_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"category", "description"}),
	}).Create(&mappings).Error
}

// DefaultFeeCategoryMappings is the seed set for fee types seen in SP-API finance reports.
func DefaultFeeCategoryMappings() []FeeCategoryMapping {
	return []FeeCategoryMapping{
		{FeeType: "Commission", Category: FeeCategoryReferral, Description: "Referral fee"},
		{FeeType: "RefundCommission", Category: FeeCategoryReferral, Description: "Referral fee retained on refund"},
		{FeeType: "VariableClosingFee", Category: FeeCategoryReferral, Description: "Variable closing fee"},
		{FeeType: "FixedClosingFee", Category: FeeCategoryReferral, Description: "Fixed closing fee"},
		{FeeType: "FBAPerUnitFulfillmentFee", Category: FeeCategoryFbaFulfillment, Description: "FBA fulfillment fee per unit"},
		{FeeType: "FBAPerOrderFulfillmentFee", Category: FeeCategoryFbaFulfillment, Description: "FBA fulfillment fee per order"},
		{FeeType: "FBAWeightBasedFee", Category: FeeCategoryFbaFulfillment, Description: "FBA weight based fee"},
		{FeeType: "FBAStorageFee", Category: FeeCategoryStorage, Description: "FBA monthly storage fee"},
		{FeeType: "StorageFee", Category: FeeCategoryStorage, Description: "Storage fee"},
		{FeeType: "FBALongTermStorageFee", Category: FeeCategoryStorage, Description: "FBA long-term storage fee"},
		{FeeType: "FBARemovalFee", Category: FeeCategoryRemoval, Description: "FBA removal order fee"},
		{FeeType: "FBADisposalFee", Category: FeeCategoryRemoval, Description: "FBA disposal fee"},
		{FeeType: "ShippingChargeback", Category: FeeCategoryShipping, Description: "Shipping chargeback"},
		{FeeType: "ShippingHB", Category: FeeCategoryShipping, Description: "Shipping holdback"},
		{FeeType: "ShippingLabelPurchase", Category: FeeCategoryShipping, Description: "Shipping label purchase"},
		{FeeType: "FBAInboundTransportationFee", Category: FeeCategoryShipping, Description: "FBA inbound transportation"},
		{FeeType: "Subscription", Category: FeeCategoryService, Description: "Professional seller subscription"},
		{FeeType: "DigitalServicesFee", Category: FeeCategoryService, Description: "Digital services fee"},
		{FeeType: "ServiceFee", Category: FeeCategoryService, Description: "Service fee"},
		{FeeType: "CostOfAdvertising", Category: FeeCategoryAdvertising, Description: "Sponsored ads"},
		{FeeType: "AdvertisingFee", Category: FeeCategoryAdvertising, Description: "Advertising fee"},
	}
}
