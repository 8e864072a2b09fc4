package workflow_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/testutil"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
	"gorm.io/gorm"
)

// seedDuplicates stores a generation pair, a lifecycle pair and an ambiguous pair and
// returns the ids expected to be removed.
func seedDuplicates(t *testing.T, db *gorm.DB) []int {
	t.Helper()
	current := event(models.EventTypeFee, "403-8857824-3703548", "SG-UBRH-8BTH", "Commission", day("2024-03-10"), "-6.75")
	current.FinancialEventId = ptr("amzn1.fe.1-Commission")
	current.Description = "Revenue - Commission"
	current.SourceGeneration = models.SourceGenerationCurrent
	legacy := event(models.EventTypeFee, "403-8857824-3703548", "SG-UBRH-8BTH", "Commission", day("2024-03-10"), "-6.75")
	legacy.FinancialEventId = ptr("amzn1.fe.2")
	legacy.SourceGeneration = models.SourceGenerationLegacy

	older := event(models.EventTypeDeferredTransaction, "306-1111111-2222222", "SKU-2", "StorageFee", day("2024-03-01"), "-3.00")
	newer := event(models.EventTypeDeferredTransaction, "306-1111111-2222222", "SKU-2", "StorageFee", day("2024-03-15"), "-3.00")

	ambigA := event(models.EventTypeFee, "306-3333333-4444444", "SKU-3", "Commission", day("2024-03-05"), "-1.00")
	ambigB := event(models.EventTypeFee, "306-3333333-4444444", "SKU-3", "Commission", day("2024-03-06"), "-1.00")

	single := event(models.EventTypeOrderRevenue, "306-3333333-4444444", "SKU-3", "", day("2024-03-05"), "10.00")

	seed(t, db, current, legacy, older, newer, ambigA, ambigB, single)
	return []int{legacy.ID, older.ID}
}

func sortedRemoveIds(r *workflow.DedupRunResult) []int {
	ids := append([]int(nil), r.Partition.RemoveIds...)
	sort.Ints(ids)
	return ids
}

func TestRunFinancialEventDedup_DryRunWritesNothing(t *testing.T) {
	db := testutil.OpenSQLite(t)
	want := seedDuplicates(t, db)
	before := countEvents(t, db)

	res, err := workflow.RunFinancialEventDedup(context.Background(), db, nil, workflow.DedupOptions{
		AccountId: testAccount,
		DryRun:    true,
	})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if got := countEvents(t, db); got != before {
		t.Fatalf("dry run changed event count %d -> %d", before, got)
	}
	if res.Report.WouldApply != 2 || res.Report.Applied != 0 {
		t.Fatalf("report would_apply=%d applied=%d", res.Report.WouldApply, res.Report.Applied)
	}
	if res.Partition.AmbiguousGroups != 1 || res.Report.Skipped != 1 {
		t.Fatalf("ambiguous groups=%d skipped=%d", res.Partition.AmbiguousGroups, res.Report.Skipped)
	}
	sort.Ints(want)
	got := sortedRemoveIds(res)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("remove ids=%v want %v", got, want)
	}
	var audits int64
	db.Model(&models.DedupAuditLog{}).Count(&audits)
	if audits != 0 {
		t.Fatalf("dry run wrote %d audit rows", audits)
	}
}

func TestRunFinancialEventDedup_LiveDeletesAndConverges(t *testing.T) {
	db := testutil.OpenSQLite(t)
	want := seedDuplicates(t, db)
	ctx := context.Background()

	res, err := workflow.RunFinancialEventDedup(ctx, db, nil, workflow.DedupOptions{
		AccountId: testAccount,
		Confirm:   workflow.ConfirmDelete,
		BatchSize: 1,
		Actor:     "test",
	})
	if err != nil {
		t.Fatalf("live run: %v", err)
	}
	if res.EventsBefore != 7 || res.EventsAfter != 5 || res.Deleted != 2 {
		t.Fatalf("before=%d after=%d deleted=%d", res.EventsBefore, res.EventsAfter, res.Deleted)
	}
	if res.BatchesCommitted != 2 {
		t.Fatalf("batches=%d want 2 with batch size 1", res.BatchesCommitted)
	}
	for _, id := range want {
		var n int64
		db.Model(&models.FinancialEvent{}).Where("id = ?", id).Count(&n)
		if n != 0 {
			t.Fatalf("event %d still stored", id)
		}
	}

	var audits []models.DedupAuditLog
	if err := db.Where("run_id = ?", res.RunId).Find(&audits).Error; err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(audits) != 2 {
		t.Fatalf("audit rows=%d want 2", len(audits))
	}
	for _, a := range audits {
		if a.Snapshot == "" || a.KeptRowId == 0 || a.Actor != "test" {
			t.Fatalf("incomplete audit row %+v", a)
		}
	}

	again, err := workflow.RunFinancialEventDedup(ctx, db, nil, workflow.DedupOptions{
		AccountId: testAccount,
		Confirm:   workflow.ConfirmDelete,
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(again.Partition.RemoveIds) != 0 || again.Deleted != 0 {
		t.Fatalf("second run removed %v", again.Partition.RemoveIds)
	}
}

func TestRunFinancialEventDedup_FailingBatchIsRolledBack(t *testing.T) {
	db := testutil.OpenSQLite(t)
	want := seedDuplicates(t, db)

	audits := 0
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_second_audit", func(tx *gorm.DB) {
		if tx.Statement.Table != "dedup_audit_logs" {
			return
		}
		audits++
		if audits == 2 {
			tx.AddError(errors.New("audit insert failed"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	res, err := workflow.RunFinancialEventDedup(context.Background(), db, nil, workflow.DedupOptions{
		AccountId: testAccount,
		Confirm:   workflow.ConfirmDelete,
		BatchSize: 1,
		Actor:     "test",
	})
	if err == nil {
		t.Fatalf("expected the second batch to fail")
	}
	if res == nil || res.BatchesCommitted != 1 || res.Deleted != 1 || res.Report.Failed != 1 {
		t.Fatalf("result=%+v", res)
	}
	if got := countEvents(t, db); got != 6 {
		t.Fatalf("events=%d want 6, the failed batch must keep its row", got)
	}
	var stored int64
	db.Model(&models.FinancialEvent{}).Where("id IN ?", want).Count(&stored)
	if stored != 1 {
		t.Fatalf("duplicates still stored=%d want 1", stored)
	}
	var logged int64
	db.Model(&models.DedupAuditLog{}).Where("run_id = ?", res.RunId).Count(&logged)
	if logged != 1 {
		t.Fatalf("audit rows=%d want 1", logged)
	}
}

func TestRunFinancialEventDedup_Guards(t *testing.T) {
	db := testutil.OpenSQLite(t)
	ctx := context.Background()

	if _, err := workflow.RunFinancialEventDedup(ctx, db, nil, workflow.DedupOptions{DryRun: true}); !errors.Is(err, utils.ErrAccountRequired) {
		t.Fatalf("missing account err=%v", err)
	}
	if _, err := workflow.RunFinancialEventDedup(ctx, db, nil, workflow.DedupOptions{AccountId: testAccount, Confirm: "yes"}); !errors.Is(err, utils.ErrConfirmRequired) {
		t.Fatalf("missing confirm err=%v", err)
	}

	seedDuplicates(t, db)
	_, err := workflow.RunFinancialEventDedup(ctx, db, nil, workflow.DedupOptions{AccountId: testAccount, DryRun: true, BatchSize: 2, MaxRows: 3})
	if !errors.Is(err, utils.ErrScanLimitExceeded) {
		t.Fatalf("scan cap err=%v", err)
	}
}

func TestRunFinancialEventDedup_RuleRestriction(t *testing.T) {
	db := testutil.OpenSQLite(t)
	seedDuplicates(t, db)

	res, err := workflow.RunFinancialEventDedup(context.Background(), db, nil, workflow.DedupOptions{
		AccountId: testAccount,
		DryRun:    true,
		Rule:      finance.DedupRuleLifecycle,
	})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	for _, r := range res.Partition.Removals() {
		if r.Rule != finance.DedupRuleLifecycle {
			t.Fatalf("removal %+v outside the lifecycle rule", r)
		}
	}
	if len(res.Partition.RemoveIds) != 1 {
		t.Fatalf("remove ids=%v want only the older deferred event", res.Partition.RemoveIds)
	}
}
