package workflow

import (
	"context"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"gorm.io/gorm"
)

// BackfillOptions are shared by the UPDATE-style maintenance tools.
type BackfillOptions struct {
	AccountId string
	DryRun    bool
	// Confirm must be "UPDATE" for a live run.
	Confirm   string
	BatchSize int
	MaxRows   int
}

func (o BackfillOptions) Normalize() (BackfillOptions, error) {
	o.AccountId = strings.TrimSpace(o.AccountId)
	if o.AccountId == "" {
		return o, utils.ErrAccountRequired
	}
	if !o.DryRun && strings.TrimSpace(o.Confirm) != ConfirmUpdate {
		return o, fmt.Errorf("%w: set confirm=%s", utils.ErrConfirmRequired, ConfirmUpdate)
	}
	if o.BatchSize <= 0 {
		o.BatchSize = config.DedupBatchSize()
	}
	if o.MaxRows == 0 {
		o.MaxRows = config.MaxScanRows()
	}
	return o, nil
}

// PendingUpdate is one planned write of a maintenance run.
type PendingUpdate struct {
	Id     string
	Reason string
	Apply  func(tx *gorm.DB) error
}

// ApplyUpdates records every update in report. In a dry run nothing is written;
// otherwise updates run batchSize at a time, one transaction per batch, and the first
// failing batch is rolled back and returned.
func ApplyUpdates(ctx context.Context, db *gorm.DB, report *BatchReport, updates []PendingUpdate, batchSize int) error {
	if report.DryRun {
		for _, u := range updates {
			report.Changed(u.Id, u.Reason)
		}
		return nil
	}
	for _, batch := range utils.ChunkSlice(updates, batchSize) {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, u := range batch {
				if err := u.Apply(tx); err != nil {
					return fmt.Errorf("%s: %w", u.Id, err)
				}
			}
			return nil
		})
		if err != nil {
			for _, u := range batch {
				report.Fail(u.Id, err)
			}
			return err
		}
		for _, u := range batch {
			report.Changed(u.Id, u.Reason)
		}
	}
	return nil
}

// expectRows fails the statement when it touched a different number of rows.
func expectRows(res *gorm.DB, want int64) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != want {
		return fmt.Errorf("%w: affected %d rows, want %d", utils.ErrBatchMismatch, res.RowsAffected, want)
	}
	return nil
}
