package models

import "gorm.io/gorm"

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Order{}, &OrderItem{},
		&FinancialEvent{}, &FeeCategoryMapping{},
		&Product{}, &AdMetric{}, &InventoryRecord{},
		&DedupAuditLog{}, &DailySummary{},
		&IdempotencyKey{},
	)
}
