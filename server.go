package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/eventsync"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/models/reports"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// PubSubMessage is the body of a Pub/Sub push delivery.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type api struct {
	db     func() *gorm.DB
	logger *logrus.Logger
}

func (a *api) accountContext(c *gin.Context) (context.Context, string, bool) {
	accountId := strings.TrimSpace(c.Param("accountId"))
	if accountId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account id is required"})
		return nil, "", false
	}
	return utils.SetAccountIdInContext(c.Request.Context(), accountId), accountId, true
}

// summaryFilter reads from, to (YYYY-MM-DD, inclusive), marketplace and sku; the
// period defaults to the last 30 days.
func summaryFilter(c *gin.Context, accountId string) (finance.SummaryFilter, error) {
	today := time.Now().UTC()
	end := today
	start := today.AddDate(0, 0, -29)
	var err error
	if v := c.Query("from"); v != "" {
		if start, err = utils.ParseDay(v, "UTC"); err != nil {
			return finance.SummaryFilter{}, err
		}
	}
	if v := c.Query("to"); v != "" {
		if end, err = utils.ParseDay(v, "UTC"); err != nil {
			return finance.SummaryFilter{}, err
		}
	}
	startDay, _ := utils.ConvertToDate(start, "UTC")
	return finance.SummaryFilter{
		AccountId:     accountId,
		Range:         finance.DateRange{From: startDay, To: utils.EndOfDay(end)},
		MarketplaceId: c.Query("marketplace"),
		Sku:           strings.TrimSpace(c.Query("sku")),
	}, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrAccountRequired), errors.Is(err, workflow.ErrInvalidRange):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (a *api) summaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, accountId, ok := a.accountContext(c)
		if !ok {
			return
		}
		filter, err := summaryFilter(c, accountId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		summary, err := workflow.GetReconciliationSummary(ctx, a.db(), filter)
		if err != nil {
			config.LogError(a.logger, "server.go", "summaryHandler", "GetReconciliationSummary", filter, err)
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func (a *api) summaryExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, accountId, ok := a.accountContext(c)
		if !ok {
			return
		}
		filter, err := summaryFilter(c, accountId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		summary, err := workflow.GetReconciliationSummary(ctx, a.db(), filter)
		if err != nil {
			config.LogError(a.logger, "server.go", "summaryExportHandler", "GetReconciliationSummary", filter, err)
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		var buf bytes.Buffer
		if err := reports.WriteSummaryExcel(&buf, summary); err != nil {
			config.LogError(a.logger, "server.go", "summaryExportHandler", "WriteSummaryExcel", filter, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		fileName := fmt.Sprintf("summary_%s_%s.xlsx",
			filter.Range.From.Format(utils.DateLayout), filter.Range.To.Format(utils.DateLayout))
		c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
		c.Data(http.StatusOK, utils.ContentTypeXLSX, buf.Bytes())
	}
}

func (a *api) orderBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, accountId, ok := a.accountContext(c)
		if !ok {
			return
		}
		balance, err := workflow.GetOrderBalance(ctx, a.db(), accountId, strings.TrimSpace(c.Param("orderId")))
		if err != nil {
			if !errors.Is(err, utils.ErrorRecordNotFound) {
				config.LogError(a.logger, "server.go", "orderBalanceHandler", "GetOrderBalance", c.Param("orderId"), err)
			}
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}

func (a *api) verificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, accountId, ok := a.accountContext(c)
		if !ok {
			return
		}
		opts := workflow.VerificationOptions{AccountId: accountId}
		if v := c.Query("as_of"); v != "" {
			asOf, err := utils.ParseDay(v, "UTC")
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			opts.AsOf = asOf
		}
		report, err := workflow.RunVerification(ctx, a.db(), a.logger, opts)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// ingestPubSubHandler writes Pub/Sub pushed ingest messages. Malformed deliveries are
// acked so they are not retried; storage failures return 500 so Pub/Sub redelivers.
func (a *api) ingestPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubMessage
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(a.logger, "server.go", "ingestPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(a.logger, "server.go", "ingestPubSubHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		writer := eventsync.NewWriter(a.db(), a.logger)
		report, err := writer.Handle(c.Request.Context(), msg.Message.Data)
		if err != nil {
			if errors.Is(err, eventsync.ErrMalformedMessage) || errors.Is(err, workflow.ErrIdempotencyExhausted) {
				c.Status(http.StatusNoContent)
				return
			}
			a.logger.WithFields(logrus.Fields{
				"field":      "ingestPubSubHandler",
				"message_id": msg.Message.ID,
			}).Error("ingest processing failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}
		if report != nil && report.HasFailures() {
			a.logger.WithFields(logrus.Fields{
				"field":      "ingestPubSubHandler",
				"message_id": msg.Message.ID,
				"failed":     report.Failed,
			}).Warn("ingest message had invalid records")
		}
		c.Status(http.StatusNoContent)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// newRouter wires the API. ready reports whether the database is connected; until it is,
// everything but /healthz answers 503.
func newRouter(a *api, ready func() bool) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			// Deny all when not configured.
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		if client := config.GetRedisDB(); client != nil {
			limit := int64(600)
			if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
					limit = n
				}
			}
			windowSec := int64(60)
			if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
					windowSec = n
				}
			}
			r.Use(NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second).RateLimitMiddleware)
		}
	}

	r.Use(customErrorLogger(a.logger))
	r.Use(gin.Recovery())

	accounts := r.Group("/api/v1/accounts/:accountId")
	accounts.GET("/summary", a.summaryHandler())
	accounts.GET("/summary/export", a.summaryExportHandler())
	accounts.GET("/orders/:orderId/balance", a.orderBalanceHandler())
	accounts.GET("/verification", a.verificationHandler())
	r.POST("/pubsub/ingest", a.ingestPubSubHandler())
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	a := &api{db: config.GetDB, logger: logger}
	r := newRouter(a, func() bool { return config.GetDB() != nil })
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	if err := config.ConnectDatabase(); err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal(err.Error())
	}
	if err := config.ConnectRedis(sigCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn("running without redis: " + err.Error())
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; allow running migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	log.Printf("Server started successfully on :%s", port)

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP in a fixed window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := rl.client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
