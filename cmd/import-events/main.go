package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/eventsync"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
)

// import-events loads a JSON array of ingest messages from a file, the same format the
// ingest worker consumes.
//
//   go run ./cmd/import-events -file=exports/2024-03.json
func main() {
	path := flag.String("file", "", "Required: JSON file with an array of ingest messages")
	verbose := flag.Bool("verbose", false, "Print every failed record")
	flag.Parse()

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}
	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer f.Close()

	if err := config.ConnectDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}

	writer := eventsync.NewWriter(config.GetDB(), config.GetLogger())
	result, err := writer.ImportFile(context.Background(), f)
	if result != nil {
		fmt.Printf("messages=%d rejected=%d\n", result.Messages, result.Failed)
		for _, r := range result.Reports {
			fmt.Printf("  %s %s applied=%d skipped=%d failed=%d\n", r.RunId, r.Operation, r.Applied, r.Skipped, r.Failed)
			if !*verbose {
				continue
			}
			for _, res := range r.Results {
				if res.Status == workflow.RecordStatusFailed {
					fmt.Printf("    %s: %s\n", res.Id, res.Reason)
				}
			}
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}
