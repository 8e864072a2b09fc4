package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/models/reports"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

// order-balance prints how one order's financial events add up to its payout.
//
//   go run ./cmd/order-balance -account-id=... -order-id=306-1234567-1234567
//   go run ./cmd/order-balance -account-id=... -order-id=... -format=json
func main() {
	accountID := flag.String("account-id", "", "Required: account id")
	orderID := flag.String("order-id", "", "Required: amazon order id")
	format := flag.String("format", reports.FormatText, "Output format: text, json or xlsx")
	out := flag.String("out", "", "Write the balance to this file instead of stdout")
	flag.Parse()

	if strings.TrimSpace(*accountID) == "" || strings.TrimSpace(*orderID) == "" {
		fmt.Fprintln(os.Stderr, "--account-id and --order-id are required")
		os.Exit(1)
	}
	outputFormat, err := reports.ParseFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if outputFormat == reports.FormatXLSX && *out == "" {
		fmt.Fprintln(os.Stderr, "xlsx output needs --out")
		os.Exit(1)
	}

	if err := config.ConnectDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	ctx := utils.SetAccountIdInContext(context.Background(), strings.TrimSpace(*accountID))

	balance, err := workflow.GetOrderBalance(ctx, config.GetDB(), strings.TrimSpace(*accountID), strings.TrimSpace(*orderID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "order balance failed: %v\n", err)
		os.Exit(1)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	if err := reports.WriteOrderBalance(w, outputFormat, *balance); err != nil {
		fmt.Fprintf(os.Stderr, "render balance: %v\n", err)
		os.Exit(1)
	}
}
