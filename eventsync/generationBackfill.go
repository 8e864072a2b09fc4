package eventsync

import (
	"context"
	"strconv"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const OperationGenerationBackfill = "event_generation_backfill"

// BackfillSourceGeneration tags stored events that still carry UNKNOWN with the
// generation the ingest classifier would have assigned.
func BackfillSourceGeneration(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts workflow.BackfillOptions) (*workflow.BatchReport, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	ctx = accountContext(ctx, opts.AccountId)
	report := workflow.NewBatchReport(OperationGenerationBackfill, opts.AccountId, uuid.NewString(), opts.DryRun)
	defer report.Finish()

	unknown := func(q *gorm.DB) *gorm.DB {
		return q.Where("source_generation = ?", models.SourceGenerationUnknown)
	}
	var updates []workflow.PendingUpdate
	err = models.ScanFinancialEvents(ctx, db, opts.AccountId, opts.BatchSize, opts.MaxRows, func(batch []models.FinancialEvent) error {
		for _, e := range batch {
			rowId := e.ID
			generation := ClassifyGeneration(e)
			updates = append(updates, workflow.PendingUpdate{
				Id:     strconv.Itoa(rowId),
				Reason: "UNKNOWN -> " + string(generation),
				Apply: func(tx *gorm.DB) error {
					// Rows tagged concurrently by ingestion are left alone.
					return tx.Model(&models.FinancialEvent{}).
						Where("account_id = ? AND id = ? AND source_generation = ?", opts.AccountId, rowId, models.SourceGenerationUnknown).
						Update("source_generation", generation).Error
				},
			})
		}
		return nil
	}, unknown)
	if err != nil {
		config.LogError(logger, "generationBackfill.go", "BackfillSourceGeneration", "scan events", opts.AccountId, err)
		return report, err
	}

	if err := workflow.ApplyUpdates(ctx, db, report, updates, opts.BatchSize); err != nil {
		config.LogError(logger, "generationBackfill.go", "BackfillSourceGeneration", "update events", opts.AccountId, err)
		return report, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"account_id":  opts.AccountId,
			"run_id":      report.RunId,
			"dry_run":     report.DryRun,
			"applied":     report.Applied,
			"would_apply": report.WouldApply,
		}).Info("generation backfill completed")
	}
	return report, nil
}
