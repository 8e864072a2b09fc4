package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/models/reports"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	ConfirmDelete = "DELETE"
	ConfirmUpdate = "UPDATE"

	OperationFinancialEventDedup = "financial_event_dedup"
	dedupTopicEnv                = "DEDUP_TOPIC"
)

type DedupOptions struct {
	AccountId string
	DryRun    bool
	// Confirm must be "DELETE" for a live run.
	Confirm   string
	Rule      finance.DedupRule
	BatchSize int
	MaxRows   int
	Actor     string
}

type DedupRunResult struct {
	RunId            string              `json:"run_id"`
	AccountId        string              `json:"account_id"`
	DryRun           bool                `json:"dry_run"`
	EventsBefore     int64               `json:"events_before"`
	EventsAfter      int64               `json:"events_after"`
	BatchesCommitted int                 `json:"batches_committed"`
	Deleted          int64               `json:"deleted"`
	Partition        finance.DedupResult `json:"partition"`
	Report           *BatchReport        `json:"report"`
}

// RunFinancialEventDedup finds duplicate financial events for one account and, in a live
// run, deletes them in batches. Each batch deletes its rows and writes their audit log in
// one transaction; a failing batch is rolled back and stops the run, leaving earlier
// batches committed. A dry run reports the same decisions without writing.
func RunFinancialEventDedup(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts DedupOptions) (result *DedupRunResult, err error) {
	accountId := strings.TrimSpace(opts.AccountId)
	if accountId == "" {
		return nil, utils.ErrAccountRequired
	}
	if !opts.DryRun && strings.TrimSpace(opts.Confirm) != ConfirmDelete {
		return nil, fmt.Errorf("%w: set confirm=%s", utils.ErrConfirmRequired, ConfirmDelete)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = config.DedupBatchSize()
	}
	maxRows := opts.MaxRows
	if maxRows == 0 {
		maxRows = config.MaxScanRows()
	}

	ctx, span := startSpan(ctx, "workflow.RunFinancialEventDedup", accountId)
	defer func() { endSpan(span, err) }()

	if !opts.DryRun {
		release, lockErr := utils.AccountLock(ctx, accountId, "dedupLock", "dedupWorkflow.go", "RunFinancialEventDedup")
		if lockErr != nil {
			return nil, lockErr
		}
		defer release()
	}

	runId := uuid.NewString()
	result = &DedupRunResult{
		RunId:     runId,
		AccountId: accountId,
		DryRun:    opts.DryRun,
		Report:    NewBatchReport(OperationFinancialEventDedup, accountId, runId, opts.DryRun),
	}

	if result.EventsBefore, err = models.CountFinancialEvents(ctx, db, accountId); err != nil {
		return nil, err
	}

	var events []models.FinancialEvent
	if err = models.ScanFinancialEvents(ctx, db, accountId, batchSize, maxRows, func(batch []models.FinancialEvent) error {
		events = append(events, batch...)
		return nil
	}); err != nil {
		config.LogError(logger, "dedupWorkflow.go", "RunFinancialEventDedup", "scan financial events", accountId, err)
		return nil, err
	}

	result.Partition = finance.PartitionDuplicates(events, finance.DedupOptions{Rule: opts.Rule})
	for _, d := range result.Partition.Decisions {
		if d.Ambiguous {
			result.Report.Skip(d.Key.String(), "ambiguous: "+d.AmbiguousReason)
		}
	}

	removals := result.Partition.Removals()
	if opts.DryRun {
		for _, r := range removals {
			result.Report.Changed(intId(r.EventId), fmt.Sprintf("%s duplicate of %d", r.Rule, r.KeptId))
		}
		result.EventsAfter = result.EventsBefore
		result.Report.Finish()
		logDedupSummary(logger, result)
		return result, nil
	}

	byId := make(map[int]models.FinancialEvent, len(events))
	keyById := map[int]string{}
	for _, e := range events {
		byId[e.ID] = e
	}
	for _, d := range result.Partition.Decisions {
		for _, r := range d.Removals {
			keyById[r.EventId] = d.Key.String()
		}
	}

	for _, batch := range utils.ChunkSlice(removals, batchSize) {
		deleted, batchErr := deleteDuplicateBatch(ctx, db, accountId, runId, opts.Actor, batch, byId, keyById)
		if batchErr != nil {
			for _, r := range batch {
				result.Report.Fail(intId(r.EventId), batchErr)
			}
			result.Report.Finish()
			config.LogError(logger, "dedupWorkflow.go", "RunFinancialEventDedup", "delete batch", map[string]any{
				"account_id": accountId, "run_id": runId, "batch": result.BatchesCommitted + 1,
			}, batchErr)
			err = fmt.Errorf("dedup batch %d: %w", result.BatchesCommitted+1, batchErr)
			return result, err
		}
		result.BatchesCommitted++
		result.Deleted += deleted
		for _, r := range batch {
			result.Report.Changed(intId(r.EventId), fmt.Sprintf("%s duplicate of %d", r.Rule, r.KeptId))
		}
	}

	if result.EventsAfter, err = models.CountFinancialEvents(ctx, db, accountId); err != nil {
		return result, err
	}
	result.Report.Finish()
	logDedupSummary(logger, result)
	if err := reports.InvalidateAccountSummaries(ctx, accountId); err != nil {
		config.LogError(logger, "dedupWorkflow.go", "RunFinancialEventDedup", "invalidate report cache", accountId, err)
	}
	publishDedupCompleted(ctx, logger, result)
	return result, nil
}

func deleteDuplicateBatch(ctx context.Context, db *gorm.DB, accountId string, runId string, actor string, batch []finance.Removal, byId map[int]models.FinancialEvent, keyById map[int]string) (int64, error) {
	ids := make([]int, 0, len(batch))
	audits := make([]models.DedupAuditLog, 0, len(batch))
	for _, r := range batch {
		ids = append(ids, r.EventId)
		snapshot, err := utils.MarshalToJSON(byId[r.EventId])
		if err != nil {
			return 0, err
		}
		audits = append(audits, models.DedupAuditLog{
			AccountId:           accountId,
			RunId:               runId,
			FinancialEventRowId: r.EventId,
			FinancialEventId:    byId[r.EventId].FinancialEventId,
			GroupKey:            keyById[r.EventId],
			Rule:                string(r.Rule),
			KeptRowId:           r.KeptId,
			Snapshot:            snapshot,
			Actor:               actor,
		})
	}

	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("account_id = ? AND id IN ?", accountId, ids).Delete(&models.FinancialEvent{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("%w: deleted %d of %d rows", utils.ErrBatchMismatch, res.RowsAffected, len(ids))
		}
		if err := tx.Create(&audits).Error; err != nil {
			return err
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

func logDedupSummary(logger *logrus.Logger, r *DedupRunResult) {
	if logger == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"field":            "FinancialEventDedup",
		"account_id":       r.AccountId,
		"run_id":           r.RunId,
		"dry_run":          r.DryRun,
		"events_before":    r.EventsBefore,
		"events_after":     r.EventsAfter,
		"duplicate_groups": r.Partition.DuplicateGroups,
		"ambiguous_groups": r.Partition.AmbiguousGroups,
		"to_remove":        len(r.Partition.RemoveIds),
		"deleted":          r.Deleted,
	}).Info("financial event dedup completed")
}

func publishDedupCompleted(ctx context.Context, logger *logrus.Logger, r *DedupRunResult) {
	payload, err := json.Marshal(map[string]any{
		"events_before": r.EventsBefore,
		"events_after":  r.EventsAfter,
		"deleted":       r.Deleted,
	})
	if err != nil {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if _, err := config.PublishMaintenanceMessage(ctx, dedupTopicEnv, config.MaintenanceMessage{
		AccountId:     r.AccountId,
		Operation:     OperationFinancialEventDedup,
		Passed:        !r.Report.HasFailures(),
		DryRun:        r.DryRun,
		CorrelationId: correlationId,
		CompletedAt:   time.Now().UTC(),
		Payload:       payload,
	}); err != nil {
		config.LogError(logger, "dedupWorkflow.go", "publishDedupCompleted", "publish dedup notification", r.AccountId, err)
	}
}
