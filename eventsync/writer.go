package eventsync

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const OperationIngest = "ingest"

// Writer is the only path ingestion uses to write to the event store.
type Writer struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewWriter(db *gorm.DB, logger *logrus.Logger) *Writer {
	return &Writer{db: db, logger: logger}
}

// Write stores the records of msg in one transaction: either every record is applied or
// none is. Any invalid record makes the whole message malformed.
func (w *Writer) Write(ctx context.Context, msg IngestMessage) (*workflow.BatchReport, error) {
	report := workflow.NewBatchReport(OperationIngest+":"+string(msg.Kind), msg.AccountId, msg.MessageId, false)
	defer report.Finish()

	var err error
	switch msg.Kind {
	case KindOrders:
		err = writeRecords(ctx, w.db, msg, report, recordWriter[OrderRecord]{orderRecordId, orderLockName, w.writeOrder})
	case KindFinancialEvents:
		err = writeRecords(ctx, w.db, msg, report, recordWriter[FinancialEventRecord]{eventRecordId, eventLockName, w.writeFinancialEvent})
	case KindAdMetrics:
		err = writeRecords(ctx, w.db, msg, report, recordWriter[AdMetricRecord]{adMetricRecordId, nil, w.writeAdMetric})
	case KindProducts:
		err = writeRecords(ctx, w.db, msg, report, recordWriter[ProductRecord]{productRecordId, nil, w.writeProduct})
	case KindInventory:
		err = writeRecords(ctx, w.db, msg, report, recordWriter[InventoryRecordInput]{inventoryRecordId, nil, w.writeInventory})
	default:
		err = fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, msg.Kind)
	}
	if err != nil {
		config.LogError(w.logger, "writer.go", "Write", msg.MessageId, msg.Kind, err)
		return report, err
	}
	return report, nil
}

// writeResult is what a single record write did besides failing.
type writeResult struct {
	skipped bool
	reason  string
}

// recordWriter ties one record kind to its id, its advisory lock and its write.
// A nil lock means the kind's upsert needs no lock.
type recordWriter[T any] struct {
	id    func(int, T) string
	lock  func(string, T) string
	write func(context.Context, *gorm.DB, string, T) (writeResult, error)
}

func writeRecords[T any](ctx context.Context, db *gorm.DB, msg IngestMessage, report *workflow.BatchReport, rw recordWriter[T]) error {
	var records []T
	if err := json.Unmarshal(msg.Records, &records); err != nil {
		return fmt.Errorf("%w: decode %s records: %v", ErrMalformedMessage, msg.Kind, err)
	}
	invalid := 0
	for i, rec := range records {
		if err := validate.Struct(rec); err != nil {
			report.Fail(rw.id(i, rec), validationError(err))
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d %s records invalid", ErrMalformedMessage, invalid, len(records), msg.Kind)
	}

	var locks []string
	if rw.lock != nil {
		for _, rec := range records {
			locks = append(locks, rw.lock(msg.AccountId, rec))
		}
		// fixed order so two messages never wait on each other
		locks = utils.UniqueSlice(locks)
		sort.Strings(locks)
	}

	results := make([]workflow.RecordResult, 0, len(records))
	failedId := msg.MessageId
	err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		for _, name := range locks {
			release, err := workflow.AcquireAdvisoryLock(conn, name)
			if err != nil {
				return err
			}
			defer release()
		}
		return conn.Transaction(func(tx *gorm.DB) error {
			for i, rec := range records {
				id := rw.id(i, rec)
				res, err := rw.write(ctx, tx, msg.AccountId, rec)
				if err != nil {
					failedId = id
					return fmt.Errorf("write %s: %w", id, err)
				}
				status := workflow.RecordStatusApplied
				if res.skipped {
					status = workflow.RecordStatusSkipped
				}
				results = append(results, workflow.RecordResult{Id: id, Status: status, Reason: res.reason})
			}
			return nil
		})
	})
	if err != nil {
		report.Fail(failedId, err)
		return err
	}
	for _, res := range results {
		report.Add(res)
	}
	return nil
}

func orderRecordId(i int, r OrderRecord) string {
	if r.AmazonOrderId != "" {
		return r.AmazonOrderId
	}
	return fmt.Sprintf("orders[%d]", i)
}

func eventRecordId(i int, r FinancialEventRecord) string {
	if r.FinancialEventId != "" {
		return r.FinancialEventId
	}
	return fmt.Sprintf("financial_events[%d]", i)
}

func adMetricRecordId(i int, r AdMetricRecord) string {
	return fmt.Sprintf("%s|%s|%s|%s", r.CampaignId, r.Sku, r.MarketplaceId, r.Date.UTC().Format("2006-01-02"))
}

func productRecordId(i int, r ProductRecord) string {
	if r.Sku != "" {
		return r.Sku
	}
	return fmt.Sprintf("products[%d]", i)
}

func inventoryRecordId(i int, r InventoryRecordInput) string {
	return fmt.Sprintf("%s|%s|%s", r.Sku, r.MarketplaceId, r.SnapshotDate.UTC().Format("2006-01-02"))
}

// writeOrder upserts the order header and replaces its items. db is the message transaction.
func (w *Writer) writeOrder(ctx context.Context, db *gorm.DB, accountId string, rec OrderRecord) (writeResult, error) {
	order := rec.toModel(accountId)
	items := order.Items
	order.Items = nil
	tx := db.WithContext(ctx)

	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "amazon_order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"purchase_date", "marketplace_id", "currency", "status", "total_amount",
			"is_business_order", "item_count", "updated_at",
		}),
	}).Omit("Items").Create(&order).Error; err != nil {
		return writeResult{}, err
	}

	var stored models.Order
	if err := tx.Select("id").
		Where("account_id = ? AND amazon_order_id = ?", accountId, order.AmazonOrderId).
		First(&stored).Error; err != nil {
		return writeResult{}, err
	}
	if err := tx.Where("account_id = ? AND order_id = ?", accountId, stored.ID).
		Delete(&models.OrderItem{}).Error; err != nil {
		return writeResult{}, err
	}
	if len(items) > 0 {
		for i := range items {
			items[i].OrderId = stored.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return writeResult{}, err
		}
	}
	return writeResult{reason: fmt.Sprintf("order upserted with %d items", len(items))}, nil
}

// writeFinancialEvent upserts on the external id. A legacy event whose current-generation
// counterpart is already stored is dropped. The caller holds the key's advisory lock, so the
// generation check and the insert do not interleave with another writer of the same key.
func (w *Writer) writeFinancialEvent(ctx context.Context, db *gorm.DB, accountId string, rec FinancialEventRecord) (writeResult, error) {
	event := rec.toModel(accountId)
	tx := db.WithContext(ctx)

	if event.SourceGeneration == models.SourceGenerationLegacy {
		exists, err := models.ExistsEventWithGeneration(ctx, tx, event, models.SourceGenerationCurrent)
		if err != nil {
			return writeResult{}, err
		}
		if exists {
			return writeResult{skipped: true, reason: "current generation event already stored"}, nil
		}
	}

	q := tx
	if event.FinancialEventId != nil {
		q = q.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}, {Name: "financial_event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"event_type", "posted_date", "amount", "currency", "marketplace_id", "amazon_order_id",
				"sku", "fee_type", "description", "source_generation", "transaction_status", "updated_at",
			}),
		})
	}
	if err := q.Create(&event).Error; err != nil {
		return writeResult{}, err
	}
	return writeResult{reason: fmt.Sprintf("%s event stored (%s)", event.EventType, event.SourceGeneration)}, nil
}

func (w *Writer) writeAdMetric(ctx context.Context, db *gorm.DB, accountId string, rec AdMetricRecord) (writeResult, error) {
	metric := rec.toModel(accountId)
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "account_id"}, {Name: "date"}, {Name: "marketplace_id"}, {Name: "campaign_id"}, {Name: "sku"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"spend", "impressions", "clicks", "attributed_sales", "updated_at"}),
	}).Create(&metric).Error
	if err != nil {
		return writeResult{}, err
	}
	return writeResult{reason: "ad metric upserted"}, nil
}

func (w *Writer) writeProduct(ctx context.Context, db *gorm.DB, accountId string, rec ProductRecord) (writeResult, error) {
	product := rec.toModel(accountId)
	updates := []string{"asin", "title", "cost", "currency", "updated_at"}
	// A zero price would undo the price backfill.
	if product.Price.IsPositive() {
		updates = append(updates, "price")
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&product).Error
	if err != nil {
		return writeResult{}, err
	}
	return writeResult{reason: "product upserted"}, nil
}

func (w *Writer) writeInventory(ctx context.Context, db *gorm.DB, accountId string, rec InventoryRecordInput) (writeResult, error) {
	snapshot := rec.toModel(accountId)
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "sku"}, {Name: "marketplace_id"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"fulfillable_qty", "inbound_qty", "reserved_qty", "updated_at"}),
	}).Create(&snapshot).Error
	if err != nil {
		return writeResult{}, err
	}
	return writeResult{reason: "inventory snapshot upserted"}, nil
}

func orderLockName(accountId string, r OrderRecord) string {
	return lockName("ingest-order", accountId+"|"+r.AmazonOrderId)
}

func eventLockName(accountId string, r FinancialEventRecord) string {
	return lockName("ingest-event", finance.KeyOf(r.toModel(accountId)).String())
}

// lockName hashes key so the name stays within MySQL's 64 character limit.
func lockName(prefix, key string) string {
	sum := sha1.Sum([]byte(key))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// accountContext scopes gorm calls made with ctx to the message's account.
func accountContext(ctx context.Context, accountId string) context.Context {
	return utils.SetAccountIdInContext(ctx, accountId)
}
