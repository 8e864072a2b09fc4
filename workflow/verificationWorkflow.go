package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	OperationVerification = "data_quality_verification"
	verificationTopicEnv  = "VERIFICATION_TOPIC"
	vatPageSize           = 500
)

type VerificationOptions struct {
	AccountId string
	// AsOf defaults to now; checks look back from the end of that day.
	AsOf    time.Time
	MaxRows int
	Publish bool
}

// RunVerification runs the four read-only data quality checks. A check whose data
// cannot be loaded is reported as failed with its error; only a missing account id
// is returned as an error.
func RunVerification(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts VerificationOptions) (*finance.VerificationReport, error) {
	accountId := strings.TrimSpace(opts.AccountId)
	if accountId == "" {
		return nil, utils.ErrAccountRequired
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	asOf = utils.EndOfDay(asOf.UTC())
	maxRows := opts.MaxRows
	if maxRows == 0 {
		maxRows = config.MaxScanRows()
	}

	ctx, span := startSpan(ctx, "workflow.RunVerification", accountId)
	defer span.End()

	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	}

	report := &finance.VerificationReport{AccountId: accountId, AsOf: asOf, CorrelationId: correlationId}
	checks := []struct {
		name string
		run  func() (finance.CheckResult, error)
	}{
		{finance.CheckDuplicateFees, func() (finance.CheckResult, error) { return checkDuplicateFees(ctx, db, accountId, maxRows) }},
		{finance.CheckVatSanity, func() (finance.CheckResult, error) { return checkVatSanity(ctx, db, accountId, asOf) }},
		{finance.CheckFeeTotals, func() (finance.CheckResult, error) { return checkFeeTotals(ctx, db, accountId, asOf) }},
		{finance.CheckCrossReference, func() (finance.CheckResult, error) { return checkCrossReference(ctx, db, accountId, asOf) }},
	}
	for _, c := range checks {
		result, err := c.run()
		if err != nil {
			config.LogError(logger, "verificationWorkflow.go", "RunVerification", "load "+c.name, map[string]any{
				"account_id": accountId, "correlation_id": correlationId,
			}, err)
			result = finance.FailedCheck(c.name, err)
		}
		report.Checks = append(report.Checks, result)
	}
	report.Finalize()

	if logger != nil {
		fields := logrus.Fields{
			"field":          "Verification",
			"account_id":     accountId,
			"correlation_id": correlationId,
			"passed":         report.Passed,
		}
		for _, c := range report.Checks {
			fields[c.Name] = c.Passed
		}
		logger.WithFields(fields).Info("data quality verification completed")
	}
	if opts.Publish {
		publishVerification(ctx, logger, report)
	}
	return report, nil
}

func checkDuplicateFees(ctx context.Context, db *gorm.DB, accountId string, maxRows int) (finance.CheckResult, error) {
	var events []models.FinancialEvent
	err := models.ScanFinancialEvents(ctx, db, accountId, config.DedupBatchSize(), maxRows, func(batch []models.FinancialEvent) error {
		events = append(events, batch...)
		return nil
	}, func(q *gorm.DB) *gorm.DB {
		return q.Where("event_type IN ? AND amazon_order_id IS NOT NULL AND amazon_order_id <> ''",
			[]models.EventType{models.EventTypeFee, models.EventTypeServiceFee})
	})
	if err != nil {
		return finance.CheckResult{}, err
	}
	return finance.DuplicateFees(events), nil
}

// checkVatSanity pages back from asOf until one more distinct day than needed has been
// seen, so the oldest reported day is complete.
func checkVatSanity(ctx context.Context, db *gorm.DB, accountId string, asOf time.Time) (finance.CheckResult, error) {
	var orders []models.Order
	days := map[string]struct{}{}
	for offset := 0; ; offset += vatPageSize {
		page, err := models.ListOrdersBefore(ctx, db, accountId, asOf, vatPageSize, offset)
		if err != nil {
			return finance.CheckResult{}, err
		}
		orders = append(orders, page...)
		for _, o := range page {
			if o.Status != models.OrderStatusCanceled {
				days[o.PurchaseDate.UTC().Format(utils.DateLayout)] = struct{}{}
			}
		}
		if len(page) < vatPageSize || len(days) > finance.VatSanityDays {
			break
		}
	}
	return finance.VatSanity(orders, asOf), nil
}

func checkFeeTotals(ctx context.Context, db *gorm.DB, accountId string, asOf time.Time) (finance.CheckResult, error) {
	window := finance.FeeTotalsWindow(asOf)
	events, err := models.ListFinancialEventsForPeriod(ctx, db, accountId, window.From, window.To, "")
	if err != nil {
		return finance.CheckResult{}, err
	}
	table, err := LoadFeeCategoryTable(ctx, db)
	if err != nil {
		return finance.CheckResult{}, err
	}
	return finance.FeeTotals(events, table, window), nil
}

func checkCrossReference(ctx context.Context, db *gorm.DB, accountId string, asOf time.Time) (finance.CheckResult, error) {
	var (
		in  finance.CrossReferenceInput
		err error
	)
	since := asOf.AddDate(0, 0, -finance.CrossReferenceDays)
	if in.OrdersWithoutEvents, err = models.ListOrderIdsWithoutEvents(ctx, db, accountId, since); err != nil {
		return finance.CheckResult{}, err
	}
	if in.OrphanedEvents, err = models.ListOrphanedFinancialEvents(ctx, db, accountId); err != nil {
		return finance.CheckResult{}, err
	}
	if in.DuplicateExternalIds, err = models.ListDuplicateExternalIds(ctx, db, accountId); err != nil {
		return finance.CheckResult{}, err
	}
	return finance.CrossReference(in), nil
}

func publishVerification(ctx context.Context, logger *logrus.Logger, r *finance.VerificationReport) {
	payload, err := json.Marshal(r.Checks)
	if err != nil {
		return
	}
	if _, err := config.PublishMaintenanceMessage(ctx, verificationTopicEnv, config.MaintenanceMessage{
		AccountId:     r.AccountId,
		Operation:     OperationVerification,
		Passed:        r.Passed,
		CorrelationId: r.CorrelationId,
		CompletedAt:   time.Now().UTC(),
		Payload:       payload,
	}); err != nil {
		config.LogError(logger, "verificationWorkflow.go", "publishVerification", "publish verification result", r.AccountId, err)
	}
}
