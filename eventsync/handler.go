package eventsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
	"github.com/sirupsen/logrus"
)

// HandlerName keys ingest messages in the idempotency table.
const HandlerName = "eventsync.ingest"

// DecodeMessage parses and validates one ingest message.
func DecodeMessage(body []byte) (IngestMessage, error) {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, validationError(err))
	}
	return msg, nil
}

// Handle decodes body and processes it once per message id.
func (w *Writer) Handle(ctx context.Context, body []byte) (*workflow.BatchReport, error) {
	msg, err := DecodeMessage(body)
	if err != nil {
		config.LogError(w.logger, "handler.go", "Handle", "decode", string(body), err)
		return nil, err
	}
	return w.Process(ctx, msg)
}

// Process writes msg unless a message with the same id already succeeded for the account.
func (w *Writer) Process(ctx context.Context, msg IngestMessage) (*workflow.BatchReport, error) {
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, validationError(err))
	}
	ctx = accountContext(ctx, msg.AccountId)
	db := w.db.WithContext(ctx)

	skip, err := workflow.BeginIdempotency(db, msg.AccountId, HandlerName, msg.MessageId)
	if err != nil {
		return nil, fmt.Errorf("begin idempotency %s: %w", msg.MessageId, err)
	}
	if skip {
		report := workflow.NewBatchReport(OperationIngest+":"+string(msg.Kind), msg.AccountId, msg.MessageId, false)
		report.Skip(msg.MessageId, "message already processed")
		report.Finish()
		return report, nil
	}

	report, writeErr := w.Write(ctx, msg)
	if writeErr != nil {
		if markErr := workflow.MarkIdempotencyFailed(db, msg.AccountId, HandlerName, msg.MessageId, writeErr); markErr != nil {
			config.LogError(w.logger, "handler.go", "Process", "mark failed", msg.MessageId, markErr)
		}
		return report, writeErr
	}
	if err := workflow.MarkIdempotencySucceeded(db, msg.AccountId, HandlerName, msg.MessageId); err != nil {
		return report, fmt.Errorf("mark idempotency %s: %w", msg.MessageId, err)
	}

	if w.logger == nil {
		return report, nil
	}
	w.logger.WithFields(logrus.Fields{
		"account_id": msg.AccountId,
		"message_id": msg.MessageId,
		"kind":       msg.Kind,
		"applied":    report.Applied,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	}).Info("ingest message processed")
	return report, nil
}

// ImportResult sums up a file import.
type ImportResult struct {
	Messages int                     `json:"messages"`
	Failed   int                     `json:"failed"`
	Reports  []*workflow.BatchReport `json:"reports"`
}

// ImportFile processes a JSON array of ingest messages. Malformed messages are counted
// and skipped; a storage error stops the import.
func (w *Writer) ImportFile(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: import file: %v", ErrMalformedMessage, err)
	}
	result := &ImportResult{Reports: []*workflow.BatchReport{}}
	for _, body := range raw {
		result.Messages++
		report, err := w.Handle(ctx, body)
		if err != nil {
			result.Failed++
			if errors.Is(err, ErrMalformedMessage) {
				continue
			}
			return result, err
		}
		result.Reports = append(result.Reports, report)
	}
	return result, nil
}
