// seed-fee-categories creates or updates the fee type to category mapping used by the
// reconciliation reports. Existing fee types keep their row and get the seeded category.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-fee-categories
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
)

func main() {
	ctx := context.Background()
	if err := config.ConnectDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	db := config.GetDB()
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	mappings := models.DefaultFeeCategoryMappings()
	if err := models.UpsertFeeCategoryMappings(ctx, db, mappings); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed fee categories: %v\n", err)
		os.Exit(1)
	}
	stored, err := models.ListFeeCategoryMappings(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list fee categories: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d fee types (%d mappings stored)\n", len(mappings), len(stored))
}
