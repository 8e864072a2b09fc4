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

// FinancialEvent is one monetary event, optionally tied to an order and SKU.
// FinancialEventId is the external id; unique per account when present.
type FinancialEvent struct {
	ID                int               `gorm:"primary_key" json:"id"`
	AccountId         string            `gorm:"size:64;not null;index:uniq_fe_external,unique,priority:1;index:idx_fe_posted,priority:1;index:idx_fe_order,priority:1" json:"account_id"`
	FinancialEventId  *string           `gorm:"size:191;index:uniq_fe_external,unique,priority:2" json:"financial_event_id"`
	EventType         EventType         `gorm:"size:40;not null;index" json:"event_type"`
	PostedDate        time.Time         `gorm:"not null;index:idx_fe_posted,priority:2" json:"posted_date"`
	Amount            decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency          string            `gorm:"size:3" json:"currency"`
	MarketplaceId     string            `gorm:"size:50;index" json:"marketplace_id"`
	AmazonOrderId     *string           `gorm:"size:50;index:idx_fe_order,priority:2" json:"amazon_order_id"`
	Sku               *string           `gorm:"size:100" json:"sku"`
	FeeType           *string           `gorm:"size:100" json:"fee_type"`
	Description       string            `gorm:"size:255" json:"description"`
	SourceGeneration  SourceGeneration  `gorm:"size:10;not null;default:UNKNOWN;index" json:"source_generation"`
	TransactionStatus TransactionStatus `gorm:"size:10" json:"transaction_status"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e FinancialEvent) OrderId() string {
	return utils.DereferencePtr(e.AmazonOrderId)
}

func (e FinancialEvent) SkuValue() string {
	return utils.DereferencePtr(e.Sku)
}

func (e FinancialEvent) FeeTypeValue() string {
	return utils.DereferencePtr(e.FeeType)
}

func (e FinancialEvent) ExternalId() string {
	return utils.DereferencePtr(e.FinancialEventId)
}

// ListFinancialEventsForPeriod returns events posted in [from, to].
func ListFinancialEventsForPeriod(ctx context.Context, db *gorm.DB, accountId string, from time.Time, to time.Time, marketplaceId string) ([]FinancialEvent, error) {
	var events []FinancialEvent
	q := db.WithContext(ctx).
		Where("account_id = ? AND posted_date >= ? AND posted_date <= ?", accountId, from.UTC(), to.UTC())
	if marketplaceId != "" {
		q = q.Where("marketplace_id = ?", marketplaceId)
	}
	if err := q.Order("posted_date, id").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func ListFinancialEventsByOrder(ctx context.Context, db *gorm.DB, accountId string, amazonOrderId string) ([]FinancialEvent, error) {
	var events []FinancialEvent
	err := db.WithContext(ctx).
		Where("account_id = ? AND amazon_order_id = ?", accountId, amazonOrderId).
		Order("posted_date, id").
		Find(&events).Error
	return events, err
}

func CountFinancialEvents(ctx context.Context, db *gorm.DB, accountId string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&FinancialEvent{}).Where("account_id = ?", accountId).Count(&count).Error
	return count, err
}

// ScanFinancialEvents walks an account's events in primary-key order, batchSize rows at
// a time. It stops with utils.ErrScanLimitExceeded once more than maxRows rows were read
// (maxRows <= 0 disables the cap).
func ScanFinancialEvents(ctx context.Context, db *gorm.DB, accountId string, batchSize int, maxRows int, fn func([]FinancialEvent) error, scopes ...func(*gorm.DB) *gorm.DB) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var (
		batch []FinancialEvent
		seen  int
	)
	q := db.WithContext(ctx).Where("account_id = ?", accountId).Scopes(scopes...)
	result := q.FindInBatches(&batch, batchSize, func(tx *gorm.DB, batchNo int) error {
		seen += len(batch)
		if maxRows > 0 && seen > maxRows {
			return fmt.Errorf("%w: more than %d financial events for account %s", utils.ErrScanLimitExceeded, maxRows, accountId)
		}
		return fn(batch)
	})
	return result.Error
}

// ListOrphanedFinancialEvents returns events whose amazon_order_id matches no stored order.
func ListOrphanedFinancialEvents(ctx context.Context, db *gorm.DB, accountId string) ([]FinancialEvent, error) {
	var events []FinancialEvent
	err := db.WithContext(ctx).Raw(`
SELECT fe.*
FROM financial_events fe
WHERE fe.account_id = ?
  AND fe.amazon_order_id IS NOT NULL
  AND fe.amazon_order_id <> ''
  AND NOT EXISTS (
    SELECT 1 FROM orders o
    WHERE o.account_id = fe.account_id AND o.amazon_order_id = fe.amazon_order_id
  )
ORDER BY fe.id`, accountId).Scan(&events).Error
	return events, err
}

type ExternalIdCount struct {
	FinancialEventId string `json:"financial_event_id"`
	Count            int64  `json:"count"`
}

// ListDuplicateExternalIds returns external event ids stored more than once for the account.
func ListDuplicateExternalIds(ctx context.Context, db *gorm.DB, accountId string) ([]ExternalIdCount, error) {
	var rows []ExternalIdCount
	err := db.WithContext(ctx).Raw(`
SELECT financial_event_id, COUNT(*) AS count
FROM financial_events
WHERE account_id = ? AND financial_event_id IS NOT NULL AND financial_event_id <> ''
GROUP BY financial_event_id
HAVING COUNT(*) > 1
ORDER BY financial_event_id`, accountId).Scan(&rows).Error
	return rows, err
}

func GetFinancialEventByExternalId(ctx context.Context, db *gorm.DB, accountId string, externalId string) (*FinancialEvent, error) {
	var event FinancialEvent
	err := db.WithContext(ctx).
		Where("account_id = ? AND financial_event_id = ?", accountId, externalId).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &event, nil
}

// ExistsEventWithGeneration reports whether an event with the same
// (order, sku, fee type, event type) and the given generation is stored.
func ExistsEventWithGeneration(ctx context.Context, db *gorm.DB, e FinancialEvent, generation SourceGeneration) (bool, error) {
	var count int64
	q := db.WithContext(ctx).Model(&FinancialEvent{}).
		Where("account_id = ? AND event_type = ? AND source_generation = ?", e.AccountId, e.EventType, generation)
	q = whereNullableEq(q, "amazon_order_id", e.AmazonOrderId)
	q = whereNullableEq(q, "sku", e.Sku)
	q = whereNullableEq(q, "fee_type", e.FeeType)
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// nil and "" are the same key value for grouping purposes.
func whereNullableEq(q *gorm.DB, column string, v *string) *gorm.DB {
	if v == nil || *v == "" {
		return q.Where(fmt.Sprintf("(%s IS NULL OR %s = '')", column, column))
	}
	return q.Where(fmt.Sprintf("%s = ?", column), *v)
}
