package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

const advisoryLockTimeoutSeconds = 30

// AcquireAdvisoryLock serializes writers on name across instances using session-level
// database advisory locks (MySQL GET_LOCK, Postgres pg_advisory_lock). The lock belongs to
// the connection, so conn must be pinned with gorm's Connection and the returned release
// called on it after the transaction commits. SQLite serializes writers by itself and takes
// no lock.
func AcquireAdvisoryLock(conn *gorm.DB, name string) (release func(), err error) {
	switch conn.Dialector.Name() {
	case "mysql":
		var ok int
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", name, advisoryLockTimeoutSeconds).Scan(&ok).Error; err != nil {
			return nil, err
		}
		if ok != 1 {
			return nil, fmt.Errorf("could not acquire advisory lock %s", name)
		}
		return func() {
			var _ok int
			_ = conn.Raw("SELECT RELEASE_LOCK(?)", name).Scan(&_ok).Error
		}, nil
	case "postgres":
		if err := conn.Exec("SELECT pg_advisory_lock(hashtext(?))", name).Error; err != nil {
			return nil, err
		}
		return func() {
			_ = conn.Exec("SELECT pg_advisory_unlock(hashtext(?))", name).Error
		}, nil
	}
	return func() {}, nil
}
