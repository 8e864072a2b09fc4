package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models/reports"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

// reconciliation-report prints revenue, fees, refunds, VAT, COGS, ads and net profit
// for an account and period.
//
//   go run ./cmd/reconciliation-report -account-id=... -from=2024-03-01 -to=2024-03-31
//   go run ./cmd/reconciliation-report -account-id=... -from=... -to=... -marketplace=DE -sku=SKU-1
//   go run ./cmd/reconciliation-report -account-id=... -from=... -to=... -format=xlsx -out=march.xlsx
func main() {
	accountID := flag.String("account-id", "", "Required: account id")
	from := flag.String("from", "", "Required: first day (YYYY-MM-DD)")
	to := flag.String("to", "", "Optional: last day (YYYY-MM-DD, default today)")
	marketplace := flag.String("marketplace", "", "Optional: marketplace id, country code or amazon domain")
	sku := flag.String("sku", "", "Optional: restrict to one SKU")
	format := flag.String("format", reports.FormatText, "Output format: text, json or xlsx")
	out := flag.String("out", "", "Write the report to this file instead of stdout")
	upload := flag.Bool("upload", false, "Upload the report to GCS_BUCKET")
	flag.Parse()

	if strings.TrimSpace(*accountID) == "" || strings.TrimSpace(*from) == "" {
		fmt.Fprintln(os.Stderr, "--account-id and --from are required")
		os.Exit(1)
	}
	outputFormat, err := reports.ParseFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if outputFormat == reports.FormatXLSX && *out == "" && !*upload {
		fmt.Fprintln(os.Stderr, "xlsx output needs --out or --upload")
		os.Exit(1)
	}
	start, err := utils.ParseDay(*from, "UTC")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	end := time.Now().UTC()
	if *to != "" {
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
	if err := config.ConnectRedis(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis unavailable, report cache disabled: %v\n", err)
	}
	ctx = utils.SetAccountIdInContext(ctx, strings.TrimSpace(*accountID))

	summary, err := workflow.GetReconciliationSummary(ctx, config.GetDB(), finance.SummaryFilter{
		AccountId:     strings.TrimSpace(*accountID),
		Range:         finance.DateRange{From: start, To: utils.EndOfDay(end)},
		MarketplaceId: *marketplace,
		Sku:           strings.TrimSpace(*sku),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}

	var buf bytes.Buffer
	if err := reports.WriteSummary(&buf, outputFormat, summary); err != nil {
		fmt.Fprintf(os.Stderr, "render report: %v\n", err)
		os.Exit(1)
	}
	switch {
	case *out != "":
		if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("report written to %s\n", *out)
	case outputFormat != reports.FormatXLSX:
		os.Stdout.Write(buf.Bytes())
	}
	if *upload {
		ext := outputFormat
		if ext == reports.FormatText {
			ext = "txt"
		}
		object := fmt.Sprintf("reconciliation/%s/%s_%s.%s", summary.Filter.AccountId,
			start.Format(utils.DateLayout), end.Format(utils.DateLayout), ext)
		uri, err := utils.UploadReportToGCS(ctx, object, bytes.NewReader(buf.Bytes()), "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("uploaded %s\n", uri)
	}
}
