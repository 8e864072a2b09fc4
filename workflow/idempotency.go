package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrIdempotencyInProgress = errors.New("idempotency in progress")
	// ErrIdempotencyExhausted means the message failed IngestMaxAttempts times; it must not be redelivered.
	ErrIdempotencyExhausted = errors.New("idempotency attempts exhausted")
)

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil) meaning "skip safely".
// A FAILED or stale STARTED row is reclaimed and its attempt counter bumped.
func BeginIdempotency(tx *gorm.DB, accountId, handlerName, messageId string) (skip bool, err error) {
	key := models.IdempotencyKey{
		AccountId:   accountId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
		Attempts:    1,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("account_id = ? AND handler_name = ? AND message_id = ?", accountId, handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		if time.Since(existing.UpdatedAt) < config.IngestStaleAfter() {
			return false, ErrIdempotencyInProgress
		}
	}
	if max := config.IngestMaxAttempts(); max > 0 && existing.Attempts >= max {
		return false, ErrIdempotencyExhausted
	}
	return false, tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusStarted,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": nil,
		}).Error
}

func MarkIdempotencySucceeded(tx *gorm.DB, accountId, handlerName, messageId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("account_id = ? AND handler_name = ? AND message_id = ?", accountId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, accountId, handlerName, messageId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("account_id = ? AND handler_name = ? AND message_id = ?", accountId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
