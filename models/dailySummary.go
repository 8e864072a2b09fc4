package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailySummary is a query-friendly per-day aggregate used by dashboards.
//
// Grain: (account_id, marketplace_id, summary_date).
// Fees, refunds, cogs, ads and vat are stored as positive numbers.
//
// NOTE: This table is derived data and can be rebuilt from orders and financial events.
type DailySummary struct {
	AccountId     string    `gorm:"primaryKey;size:64;index:idx_ds_account_date,priority:1" json:"account_id"`
	MarketplaceId string    `gorm:"primaryKey;size:50" json:"marketplace_id"`
	SummaryDate   time.Time `gorm:"primaryKey;index:idx_ds_account_date,priority:2" json:"summary_date"`

	Revenue   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"revenue"`
	Fees      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fees"`
	Refunds   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"refunds"`
	Vat       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat"`
	Cogs      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cogs"`
	Ads       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"ads"`
	NetProfit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_profit"`
	Margin    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"margin"`
	UnitsSold int             `gorm:"default:0" json:"units_sold"`
	Orders    int             `gorm:"default:0" json:"orders"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertDailySummaries writes rows keyed by their primary key, overwriting figures.
func UpsertDailySummaries(ctx context.Context, db *gorm.DB, rows []DailySummary) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "marketplace_id"}, {Name: "summary_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"revenue", "fees", "refunds", "vat", "cogs", "ads", "net_profit", "margin", "units_sold", "orders", "updated_at",
		}),
	}).Create(&rows).Error
}

func ListDailySummaries(ctx context.Context, db *gorm.DB, accountId string, from time.Time, to time.Time) ([]DailySummary, error) {
	var rows []DailySummary
	err := db.WithContext(ctx).
		Where("account_id = ? AND summary_date >= ? AND summary_date <= ?", accountId, from.UTC(), to.UTC()).
		Order("summary_date, marketplace_id").
		Find(&rows).Error
	return rows, err
}
