package reports

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
)

const summaryCachePrefix = "report:summary"

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

// LogSlowReport logs a report that took longer than REPORT_SLOW_MS.
func LogSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	acc, _ := utils.GetAccountIdFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	log.Printf("slow_report name=%s ms=%d account_id=%s correlation_id=%s extra=%v", name, d.Milliseconds(), acc, cid, extra)
}

// SummaryCacheKey identifies one summary filter in the report cache.
func SummaryCacheKey(f finance.SummaryFilter) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s", summaryCachePrefix, f.AccountId,
		f.Range.From.UTC().Format(time.RFC3339), f.Range.To.UTC().Format(time.RFC3339),
		f.MarketplaceId, f.Sku)
}

// CachedSummary returns the cached summary for f when the report cache is enabled,
// otherwise it runs load and stores the result.
func CachedSummary(ctx context.Context, f finance.SummaryFilter, load func() (finance.Summary, error)) (finance.Summary, error) {
	if !config.ReportCacheEnabled() {
		return load()
	}
	key := SummaryCacheKey(f)
	var cached finance.Summary
	if ok, err := cacheGet(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	summary, err := load()
	if err != nil {
		return summary, err
	}
	if err := cacheSet(ctx, key, summary, config.ReportCacheTTL()); err != nil {
		log.Printf("report cache set failed key=%s: %v", key, err)
	}
	return summary, nil
}

// InvalidateAccountSummaries drops every cached summary for the account.
func InvalidateAccountSummaries(ctx context.Context, accountId string) error {
	rdb := config.GetRedisDB()
	if rdb == nil {
		return nil
	}
	iter := rdb.Scan(ctx, 0, fmt.Sprintf("%s:%s:*", summaryCachePrefix, accountId), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return config.RemoveRedisKey(ctx, keys...)
}

func cacheGet[T any](ctx context.Context, key string, dest *T) (bool, error) {
	return config.GetRedisObject(ctx, key, dest)
}

func cacheSet(ctx context.Context, key string, obj any, ttl time.Duration) error {
	return config.SetRedisObject(ctx, key, obj, ttl)
}
