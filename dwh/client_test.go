package dwh

import (
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"github.com/shopspring/decimal"
)

func TestSummaryValuesMatchInsertColumns(t *testing.T) {
	query := insertQuery("analytics")
	open, end := strings.Index(query, "("), strings.LastIndex(query, ")")
	columns := strings.Split(query[open+1:end], ",")

	row := models.DailySummary{
		AccountId:     "acct-1",
		MarketplaceId: "A1PA6795UKMFR9",
		SummaryDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Revenue:       decimal.RequireFromString("45"),
		UnitsSold:     3,
		Orders:        2,
	}
	values := summaryValues(row, time.Now())
	if len(values) != len(columns) {
		t.Fatalf("%d values for %d columns", len(values), len(columns))
	}
	if values[0] != "acct-1" || values[11] != int64(3) || values[12] != int64(2) {
		t.Fatalf("values = %v", values)
	}
	if !strings.HasPrefix(query, "INSERT INTO analytics.fact_daily_summary") {
		t.Fatalf("query = %s", query)
	}
}

func TestCreateTableQueryUsesReplacingEngine(t *testing.T) {
	q := createTableQuery("analytics")
	if !strings.Contains(q, "analytics.fact_daily_summary") || !strings.Contains(q, "ReplacingMergeTree(exported_at)") {
		t.Fatalf("query = %s", q)
	}
}
