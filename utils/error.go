package utils

import "errors"

var (
	ErrorRecordNotFound  = errors.New("record not found")
	ErrAccountRequired   = errors.New("account id is required")
	ErrConfirmRequired   = errors.New("explicit confirmation is required for a live run")
	ErrScanLimitExceeded = errors.New("scan limit exceeded")
	ErrBatchMismatch     = errors.New("batch affected an unexpected number of rows")
	ErrLockNotObtained   = errors.New("could not obtain account lock")
)
