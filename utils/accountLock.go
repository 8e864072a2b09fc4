package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"github.com/bsm/redislock"
)

const maintenanceLockTTL = 10 * time.Minute

// AccountLock obtains the account-wide lock for lockType and returns its release func.
// Without Redis configured the lock is skipped and the returned release is a no-op.
func AccountLock(ctx context.Context, accountId string, lockType string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		logger.WithField("account_id", accountId).Debugf("%s: redis lock not configured, continuing without %s", functionName, lockType)
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("%s:%s", lockType, accountId)
	lock, err := locker.Obtain(ctx, lockKey, maintenanceLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for accountId", accountId, err)
		return nil, ErrLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for accountId", accountId, err)
		return nil, err
	}
	return func() {
		// release with a fresh context; ctx may already be cancelled
		_ = lock.Release(context.Background())
	}, nil
}
