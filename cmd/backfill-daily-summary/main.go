package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/dwh"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

// backfill-daily-summary rebuilds daily_summaries for an account from orders, financial
// events and ad metrics, optionally exporting the rows to ClickHouse.
//
//   go run ./cmd/backfill-daily-summary -account-id=... -from=2024-01-01
//   go run ./cmd/backfill-daily-summary -account-id=... -from=... -to=... -clickhouse
func main() {
	accountID := flag.String("account-id", "", "Required: account id")
	from := flag.String("from", "", "Optional: start date (YYYY-MM-DD). Defaults to 90 days ago.")
	to := flag.String("to", "", "Optional: end date (YYYY-MM-DD). Defaults to today.")
	dryRun := flag.Bool("dry-run", false, "Compute rows without writing")
	exportClickHouse := flag.Bool("clickhouse", false, "Also export the rows to ClickHouse (CLICKHOUSE_* env)")
	flag.Parse()

	if strings.TrimSpace(*accountID) == "" {
		fmt.Fprintln(os.Stderr, "--account-id is required")
		os.Exit(1)
	}
	today, _ := utils.ConvertToDate(time.Now().UTC(), "UTC")
	start, end := today.AddDate(0, 0, -90), today
	var err error
	if strings.TrimSpace(*from) != "" {
		if start, err = utils.ParseDay(*from, "UTC"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if strings.TrimSpace(*to) != "" {
		if end, err = utils.ParseDay(*to, "UTC"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	if err := config.ConnectDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	db := config.GetDB()
	// Ensure schema is up-to-date (creates daily_summaries if missing).
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	if err := config.ConnectRedis(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis unavailable, cached reports are not invalidated: %v\n", err)
	}
	ctx = utils.SetAccountIdInContext(ctx, strings.TrimSpace(*accountID))

	opts := workflow.DailySummaryOptions{
		AccountId: strings.TrimSpace(*accountID),
		From:      start,
		To:        end,
		DryRun:    *dryRun,
	}
	if *exportClickHouse && !*dryRun {
		client, err := dwh.NewClient(ctx, config.ClickHouseConfigFromEnv())
		if err != nil {
			fmt.Fprintf(os.Stderr, "clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()
		if err := client.EnsureSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "clickhouse schema: %v\n", err)
			os.Exit(1)
		}
		opts.Exporter = client
	}

	fmt.Printf("Backfilling daily_summaries account=%s from=%s to=%s dry_run=%v\n",
		opts.AccountId, start.Format(utils.DateLayout), end.Format(utils.DateLayout), *dryRun)
	result, err := workflow.BackfillDailySummaries(ctx, db, config.GetLogger(), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "account %s backfill failed: %v\n", opts.AccountId, err)
		os.Exit(1)
	}
	fmt.Printf("rows=%d upserted=%d deleted=%d exported=%d\n", len(result.Rows), result.Upserted, result.Deleted, result.Exported)
	fmt.Println("Backfill complete")
}
