package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

// financial-event-dedup removes duplicate financial events of one account
// (legacy rows shadowed by current-generation rows, superseded deferred-transaction rows).
//
// Dry-run (default): show what would be removed
//   go run ./cmd/financial-event-dedup -account-id=... -dry-run=true
//
// Execute:
//   go run ./cmd/financial-event-dedup -account-id=... -dry-run=false -confirm=DELETE
//
// One rule only:
//   go run ./cmd/financial-event-dedup -account-id=... -rule=lifecycle
func main() {
	accountID := flag.String("account-id", "", "Required: account id")
	dryRun := flag.Bool("dry-run", true, "Report only (no writes)")
	confirm := flag.String("confirm", "", "Type DELETE to proceed when dry-run=false")
	rule := flag.String("rule", "all", "Rule to apply: generation, lifecycle or all")
	batchSize := flag.Int("batch-size", 0, "Rows per delete transaction (default DEDUP_BATCH_SIZE or 1000)")
	maxRows := flag.Int("max-rows", 0, "Abort when the account has more events than this (default MAX_SCAN_ROWS)")
	verbose := flag.Bool("verbose", false, "Print every duplicate group")
	flag.Parse()

	if strings.TrimSpace(*accountID) == "" {
		fmt.Fprintln(os.Stderr, "--account-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != workflow.ConfirmDelete {
		fmt.Fprintln(os.Stderr, "set --confirm=DELETE to proceed")
		os.Exit(1)
	}
	dedupRule, err := finance.ParseDedupRule(*rule)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := config.ConnectDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	if err := config.ConnectRedis(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis unavailable, running without account lock: %v\n", err)
	}
	ctx = utils.SetAccountIdInContext(ctx, strings.TrimSpace(*accountID))

	result, err := workflow.RunFinancialEventDedup(ctx, config.GetDB(), config.GetLogger(), workflow.DedupOptions{
		AccountId: *accountID,
		DryRun:    *dryRun,
		Confirm:   *confirm,
		Rule:      dedupRule,
		BatchSize: *batchSize,
		MaxRows:   *maxRows,
		Actor:     "financial-event-dedup",
	})
	if result != nil {
		printResult(result, *verbose)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dedup failed: %v\n", err)
		os.Exit(1)
	}
}

func printResult(r *workflow.DedupRunResult, verbose bool) {
	p := r.Partition
	fmt.Printf("run=%s account=%s dry_run=%v rule=%s\n", r.RunId, r.AccountId, r.DryRun, p.Rule)
	fmt.Printf("events: scanned=%d groups=%d duplicate_groups=%d ambiguous_groups=%d\n",
		p.TotalEvents, p.Groups, p.DuplicateGroups, p.AmbiguousGroups)
	if verbose {
		for _, d := range p.Decisions {
			if d.Ambiguous {
				fmt.Printf("  SKIP %s (%d events): %s\n", d.Key.String(), d.Events, d.AmbiguousReason)
				continue
			}
			fmt.Printf("  %s keep=%v remove=%v\n", d.Key.String(), d.KeepIds, d.RemoveIds())
		}
	}
	if r.DryRun {
		fmt.Printf("would delete %d events (before=%d)\n", len(p.RemoveIds), r.EventsBefore)
		return
	}
	fmt.Printf("deleted=%d batches=%d before=%d after=%d\n", r.Deleted, r.BatchesCommitted, r.EventsBefore, r.EventsAfter)
}
