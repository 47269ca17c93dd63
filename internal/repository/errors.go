// Package repository defines the data-access interfaces of the booking core
// together with their MySQL implementation.  The sentinel errors below let
// the service layer distinguish storage outcomes without knowing which
// driver produced them.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrLockNotAvailable is returned when a NOWAIT row lock could not be taken
// because another transaction holds one of the rows.
var ErrLockNotAvailable = errors.New("row lock not available")

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// ErrTheaterNotFound is returned when a referenced theater does not exist.
var ErrTheaterNotFound = errors.New("theater not found")

// ErrUserNotFound is returned when a referenced user does not exist.
var ErrUserNotFound = errors.New("user not found")

// MySQL server error numbers we translate.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockNowait      = 3572
	mysqlLockWaitTimeout = 1205
)

// translate maps driver errors onto the package sentinels.  Unknown errors
// are returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return errors.Join(ErrDuplicate, err)
		case mysqlLockNowait, mysqlLockWaitTimeout:
			return errors.Join(ErrLockNotAvailable, err)
		}
	}
	return err
}
