// Package dwh exports derived daily summaries to the ClickHouse warehouse.
package dwh

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const dailySummaryTable = "fact_daily_summary"

type Client struct {
	conn     driver.Conn
	database string
}

func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		DialTimeout:  time.Second * 30,
	}
	// 8443 is the TLS native port; 9000 is plain.
	if cfg.Port == 8443 {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{conn: conn, database: cfg.Database}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// EnsureSchema creates the summary fact table when it is missing. Rows are replaced by
// (account, marketplace, date), keeping the latest export.
func (c *Client) EnsureSchema(ctx context.Context) error {
	return c.conn.Exec(ctx, createTableQuery(c.database))
}

// InsertDailySummaries appends rows in one batch.
func (c *Client) InsertDailySummaries(ctx context.Context, rows []models.DailySummary) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, insertQuery(c.database))
	if err != nil {
		return fmt.Errorf("prepare daily summary batch: %w", err)
	}
	exportedAt := time.Now().UTC()
	for _, r := range rows {
		if err := batch.Append(summaryValues(r, exportedAt)...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append daily summary %s %s: %w", r.MarketplaceId, r.SummaryDate.Format("2006-01-02"), err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send daily summary batch: %w", err)
	}
	return nil
}

func createTableQuery(database string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.%s (
	account_id String,
	marketplace_id String,
	summary_date Date,
	revenue Decimal(20, 4),
	fees Decimal(20, 4),
	refunds Decimal(20, 4),
	vat Decimal(20, 4),
	cogs Decimal(20, 4),
	ads Decimal(20, 4),
	net_profit Decimal(20, 4),
	margin Decimal(10, 2),
	units_sold Int64,
	orders Int64,
	exported_at DateTime
) ENGINE = ReplacingMergeTree(exported_at)
ORDER BY (account_id, marketplace_id, summary_date)`, database, dailySummaryTable)
}

func insertQuery(database string) string {
	return fmt.Sprintf(`INSERT INTO %s.%s (
	account_id, marketplace_id, summary_date, revenue, fees, refunds, vat, cogs, ads,
	net_profit, margin, units_sold, orders, exported_at
)`, database, dailySummaryTable)
}

// summaryValues orders r's columns as insertQuery lists them.
func summaryValues(r models.DailySummary, exportedAt time.Time) []any {
	return []any{
		r.AccountId,
		r.MarketplaceId,
		r.SummaryDate.UTC(),
		r.Revenue,
		r.Fees,
		r.Refunds,
		r.Vat,
		r.Cogs,
		r.Ads,
		r.NetProfit,
		r.Margin,
		int64(r.UnitsSold),
		int64(r.Orders),
		exportedAt,
	}
}
