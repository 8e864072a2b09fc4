package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBatchSize   = 1000
	DefaultMaxScanRows = 500000
)

// DedupBatchSize is the number of rows deleted per transaction by live maintenance runs.
//
// Set via env:
// - DEDUP_BATCH_SIZE=1000
func DedupBatchSize() int {
	n := intFromEnv("DEDUP_BATCH_SIZE", DefaultBatchSize)
	if n <= 0 {
		return DefaultBatchSize
	}
	return n
}

// MaxScanRows caps full-account scans (dedup detection, verification, backfills).
//
// Set via env:
// - MAX_SCAN_ROWS=500000
func MaxScanRows() int {
	n := intFromEnv("MAX_SCAN_ROWS", DefaultMaxScanRows)
	if n <= 0 {
		return DefaultMaxScanRows
	}
	return n
}

// ReportCacheEnabled toggles the redis-backed reconciliation summary cache.
//
// Set via env:
// - ENABLE_REPORT_CACHE=true
// - REPORT_CACHE_TTL_SECONDS=300
func ReportCacheEnabled() bool {
	return boolFromEnv("ENABLE_REPORT_CACHE") && GetRedisDB() != nil
}

func ReportCacheTTL() time.Duration {
	n := intFromEnv("REPORT_CACHE_TTL_SECONDS", 300)
	if n <= 0 {
		n = 300
	}
	return time.Duration(n) * time.Second
}

// IngestMaxAttempts bounds how often a failing ingest message is retried before it is
// given up (0 retries forever).
//
// Set via env:
// - INGEST_MAX_ATTEMPTS=5
// - INGEST_STALE_SECONDS=300
func IngestMaxAttempts() int {
	n := intFromEnv("INGEST_MAX_ATTEMPTS", 5)
	if n < 0 {
		return 0
	}
	return n
}

// IngestStaleAfter is how long a STARTED message may sit before another consumer reclaims it.
func IngestStaleAfter() time.Duration {
	n := intFromEnv("INGEST_STALE_SECONDS", 300)
	if n <= 0 {
		n = 300
	}
	return time.Duration(n) * time.Second
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y" || v == "on"
}

func stringFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
