package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

// marketplace-normalize rewrites country codes and amazon domains stored as marketplace ids
// (DE, amazon.de, ...) to canonical SP-API marketplace ids.
//
// Dry-run (default):
//   go run ./cmd/marketplace-normalize -account-id=...
//
// Execute:
//   go run ./cmd/marketplace-normalize -account-id=... -dry-run=false -confirm=UPDATE
func main() {
	accountID := flag.String("account-id", "", "Required: account id")
	dryRun := flag.Bool("dry-run", true, "Report only (no writes)")
	confirm := flag.String("confirm", "", "Type UPDATE to proceed when dry-run=false")
	batchSize := flag.Int("batch-size", 0, "Rows per update transaction (default DEDUP_BATCH_SIZE or 1000)")
	maxRows := flag.Int("max-rows", 0, "Abort when the account has more rows than this (default MAX_SCAN_ROWS)")
	verbose := flag.Bool("verbose", false, "Print every record")
	flag.Parse()

	if strings.TrimSpace(*accountID) == "" {
		fmt.Fprintln(os.Stderr, "--account-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != workflow.ConfirmUpdate {
		fmt.Fprintln(os.Stderr, "set --confirm=UPDATE to proceed")
		os.Exit(1)
	}

	if err := config.ConnectDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	ctx := utils.SetAccountIdInContext(context.Background(), strings.TrimSpace(*accountID))
	opts := workflow.BackfillOptions{
		AccountId: *accountID,
		DryRun:    *dryRun,
		Confirm:   *confirm,
		BatchSize: *batchSize,
		MaxRows:   *maxRows,
	}

	report, err := workflow.NormalizeMarketplaceIds(ctx, config.GetDB(), config.GetLogger(), opts)
	if report != nil {
		printReport(report, *verbose)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "normalize failed: %v\n", err)
		os.Exit(1)
	}
	if report.HasFailures() {
		os.Exit(1)
	}
}

func printReport(r *workflow.BatchReport, verbose bool) {
	fmt.Printf("%s account=%s run=%s dry_run=%v\n", r.Operation, r.AccountId, r.RunId, r.DryRun)
	fmt.Printf("applied=%d would_apply=%d skipped=%d failed=%d\n", r.Applied, r.WouldApply, r.Skipped, r.Failed)
	for _, res := range r.Results {
		if !verbose && res.Status != workflow.RecordStatusFailed {
			continue
		}
		fmt.Printf("  %-11s %s %s\n", res.Status, res.Id, res.Reason)
	}
}
