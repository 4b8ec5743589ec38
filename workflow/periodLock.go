package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquirePayPeriodLock serializes reconciliation and allocation per pay
// period across instances using MySQL advisory locks, so delete-and-replace
// cannot interleave and expose a partially replaced rule set. Runs for
// different periods proceed concurrently.
// NOTE: GET_LOCK is connection-scoped and survives commit, so acquire and
// release must both run on the run's transaction connection. Callers defer
// ReleasePayPeriodLock(tx, …) inside the db.Transaction closure; the defer
// fires as the closure returns, before gorm commits, which keeps RELEASE_LOCK
// on the same session that took the lock.
func AcquirePayPeriodLock(tx *gorm.DB, payPeriodId string) error {
	lockName := fmt.Sprintf("payperiod:%s", payPeriodId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire lock for pay_period_id=%s", payPeriodId)
	}
	return nil
}

// ReleasePayPeriodLock must be given the same *gorm.DB the lock was acquired
// on; RELEASE_LOCK on any other connection returns 0 and frees nothing.
func ReleasePayPeriodLock(tx *gorm.DB, payPeriodId string) {
	lockName := fmt.Sprintf("payperiod:%s", payPeriodId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
