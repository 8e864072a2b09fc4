package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AdMetric is one day of advertising spend for a campaign. Sku is empty for
// campaign-level rows.
type AdMetric struct {
	ID              int             `gorm:"primary_key" json:"id"`
	AccountId       string          `gorm:"size:64;not null;index:uniq_ad_metric,unique,priority:1" json:"account_id"`
	Date            time.Time       `gorm:"not null;index:uniq_ad_metric,unique,priority:2" json:"date"`
	MarketplaceId   string          `gorm:"size:50;not null;index:uniq_ad_metric,unique,priority:3" json:"marketplace_id"`
	CampaignId      string          `gorm:"size:100;not null;index:uniq_ad_metric,unique,priority:4" json:"campaign_id"`
	Sku             string          `gorm:"size:100;not null;default:'';index:uniq_ad_metric,unique,priority:5" json:"sku"`
	Spend           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"spend"`
	Impressions     int64           `gorm:"default:0" json:"impressions"`
	Clicks          int64           `gorm:"default:0" json:"clicks"`
	AttributedSales decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"attributed_sales"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func ListAdMetricsForPeriod(ctx context.Context, db *gorm.DB, accountId string, from time.Time, to time.Time, marketplaceId string) ([]AdMetric, error) {
	var metrics []AdMetric
	q := db.WithContext(ctx).
		Where("account_id = ? AND date >= ? AND date <= ?", accountId, from.UTC(), to.UTC())
	if marketplaceId != "" {
		q = q.Where("marketplace_id = ?", marketplaceId)
	}
	err := q.Order("date, id").Find(&metrics).Error
	return metrics, err
}
