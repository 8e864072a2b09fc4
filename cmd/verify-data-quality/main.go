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
	"bitbucket.org/mmdatafocus/seller_analytics/models/reports"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

// verify-data-quality runs the read-only data quality checks for one account and exits
// with status 1 when any check fails.
//
//   go run ./cmd/verify-data-quality -account-id=...
//   go run ./cmd/verify-data-quality -account-id=... -as-of=2024-03-31 -format=json
//   go run ./cmd/verify-data-quality -account-id=... -format=xlsx -upload -publish
func main() {
	accountID := flag.String("account-id", "", "Required: account id")
	asOf := flag.String("as-of", "", "Optional: check as of this day (YYYY-MM-DD, default today)")
	format := flag.String("format", reports.FormatText, "Output format: text, json or xlsx")
	out := flag.String("out", "", "Write the report to this file instead of stdout")
	upload := flag.Bool("upload", false, "Upload the report to GCS_BUCKET")
	publish := flag.Bool("publish", false, "Publish the result to VERIFICATION_TOPIC")
	maxRows := flag.Int("max-rows", 0, "Scan cap for the duplicate fee check (default MAX_SCAN_ROWS)")
	flag.Parse()

	if strings.TrimSpace(*accountID) == "" {
		fmt.Fprintln(os.Stderr, "--account-id is required")
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
	day := time.Now().UTC()
	if *asOf != "" {
		if day, err = utils.ParseDay(*asOf, "UTC"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	if err := config.ConnectDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetAccountIdInContext(ctx, strings.TrimSpace(*accountID))

	report, err := workflow.RunVerification(ctx, config.GetDB(), config.GetLogger(), workflow.VerificationOptions{
		AccountId: *accountID,
		AsOf:      day,
		MaxRows:   *maxRows,
		Publish:   *publish,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
		os.Exit(1)
	}

	var buf bytes.Buffer
	if err := reports.WriteVerification(&buf, outputFormat, *report); err != nil {
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
		object := fmt.Sprintf("verification/%s/%s.%s", report.AccountId, report.AsOf.Format(utils.DateLayout), extension(outputFormat))
		uri, err := utils.UploadReportToGCS(ctx, object, bytes.NewReader(buf.Bytes()), "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("uploaded %s\n", uri)
	}

	if !report.Passed {
		os.Exit(1)
	}
}

func extension(format string) string {
	if format == reports.FormatText {
		return "txt"
	}
	return format
}
